package worker

import (
	"context"

	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/vault"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
	"go.uber.org/multierr"
)

// ChargeCycle scans every allocated subscription id, collects the ones that
// are due, and charges them in batches on behalf of the vault admin.
type ChargeCycle struct {
	repo     vault.Repository
	engine   *charges.Engine
	clock    vault.Clock
	logg     *logger.Logger
	batchMax int
}

func NewChargeCycle(repo vault.Repository, engine *charges.Engine, clock vault.Clock, logg *logger.Logger, batchMax int) *ChargeCycle {
	if clock == nil {
		clock = vault.SystemClock{}
	}
	if batchMax <= 0 {
		batchMax = 100
	}
	return &ChargeCycle{repo: repo, engine: engine, clock: clock, logg: logg, batchMax: batchMax}
}

// Run executes one full cycle. Per-subscription failures are aggregated and
// reported together; an expected outcome such as an already charged period
// is not an error.
func (c *ChargeCycle) Run(ctx context.Context) error {
	admin, err := c.repo.GetAdmin(ctx)
	if err != nil {
		return err
	}
	due, err := c.collectDue(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		c.logg.Info(ctx, "no subscriptions due this cycle")
		return nil
	}

	var cycleErr error
	for start := 0; start < len(due); start += c.batchMax {
		end := start + c.batchMax
		if end > len(due) {
			end = len(due)
		}
		results, err := c.engine.BatchCharge(ctx, admin, due[start:end])
		if err != nil {
			cycleErr = multierr.Append(cycleErr, err)
			continue
		}
		for _, result := range results {
			if result.Error == nil || expectedOutcome(*result.Error) {
				continue
			}
			cycleErr = multierr.Append(cycleErr, pkgerrors.New(*result.Error, "charge failed").
				WithDetails(map[string]any{"subscription_id": result.SubscriptionID}))
		}
	}

	c.logg.Info(c.logg.WithField(ctx, "due_count", len(due)), "charge cycle complete")
	return cycleErr
}

// collectDue walks ids 0..next_id and keeps the active, unexpired
// subscriptions whose interval has elapsed. Gaps left by migration are
// skipped.
func (c *ChargeCycle) collectDue(ctx context.Context) ([]uint32, error) {
	nextID, err := c.repo.NextID(ctx)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()

	var due []uint32
	for id := uint32(0); id < nextID; id++ {
		sub, err := c.repo.GetSubscription(ctx, id)
		if err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
				continue
			}
			return nil, err
		}
		if sub.Status != enums.SubscriptionStatusActive || sub.ExpiredAt(now) {
			continue
		}
		nextAt, err := sub.NextChargeTimestamp()
		if err != nil {
			continue
		}
		if now >= nextAt {
			due = append(due, id)
		}
	}
	return due, nil
}

// expectedOutcome filters the charge results a healthy cycle produces:
// another worker may have charged the period first, or the balance check
// failed and the subscription was parked.
func expectedOutcome(code pkgerrors.Code) bool {
	switch code {
	case pkgerrors.CodeReplay, pkgerrors.CodeInsufficientBalance, pkgerrors.CodeIntervalNotElapsed, pkgerrors.CodeNotActive, pkgerrors.CodeExpired:
		return true
	default:
		return false
	}
}
