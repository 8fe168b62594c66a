// Package charges implements the recurring charge engine. A charge deducts
// one billing amount from the prepaid balance and emits a transfer
// instruction; each billing period can be charged at most once.
package charges

import (
	"context"

	"github.com/google/uuid"
	"github.com/vaultpay/subvault-backend/internal/ledger"
	"github.com/vaultpay/subvault-backend/internal/vault"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
	"github.com/vaultpay/subvault-backend/pkg/metrics"
)

// Result is the per-subscription outcome of a batch charge. Exactly one of
// Charged or Error is meaningful.
type Result struct {
	SubscriptionID uint32         `json:"subscription_id"`
	Charged        bool           `json:"charged"`
	Error          *pkgerrors.Code `json:"error,omitempty"`
}

// Engine charges due subscriptions. All charge entry points are admin-only.
type Engine struct {
	repo     vault.Repository
	authz    vault.Authorizer
	clock    vault.Clock
	ledger   ledger.Publisher
	metrics  *metrics.ChargeMetrics
	logg     *logger.Logger
	batchMax int
}

func NewEngine(repo vault.Repository, authz vault.Authorizer, clock vault.Clock, publisher ledger.Publisher, chargeMetrics *metrics.ChargeMetrics, logg *logger.Logger, batchMax int) *Engine {
	if clock == nil {
		clock = vault.SystemClock{}
	}
	if batchMax <= 0 {
		batchMax = 100
	}
	return &Engine{
		repo:     repo,
		authz:    authz,
		clock:    clock,
		ledger:   publisher,
		metrics:  chargeMetrics,
		logg:     logg,
		batchMax: batchMax,
	}
}

// Charge attempts to charge a single subscription for the current billing
// period. The caller must be the vault admin.
func (e *Engine) Charge(ctx context.Context, caller uuid.UUID, id uint32) (*vault.Subscription, error) {
	if err := e.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	sub, err := e.chargeOne(ctx, id, e.clock.Now())
	e.metrics.IncOutcome(outcomeLabel(err))
	return sub, err
}

// BatchCharge charges each listed subscription independently: one failure
// never aborts the rest. The batch is validated before any charge runs.
func (e *Engine) BatchCharge(ctx context.Context, caller uuid.UUID, ids []uint32) ([]Result, error) {
	if err := e.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "batch must contain at least one subscription id")
	}
	if len(ids) > e.batchMax {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "batch exceeds maximum size").
			WithDetails(map[string]any{"max_size": e.batchMax, "got": len(ids)})
	}

	e.metrics.ObserveBatchSize(len(ids))
	now := e.clock.Now()

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		_, err := e.chargeOne(ctx, id, now)
		e.metrics.IncOutcome(outcomeLabel(err))
		result := Result{SubscriptionID: id, Charged: err == nil}
		if err != nil {
			code := pkgerrors.CodeOf(err)
			result.Error = &code
		}
		results = append(results, result)
	}
	return results, nil
}

// chargeOne runs the charge checks in a fixed order so callers always see
// the most specific failure: missing record, then expiration, then status,
// then replay, then timing, and only then the balance. Replay runs before
// the interval check because a successful charge moves the last-payment
// timestamp to now; a second attempt in the same period must still report
// the period as already charged.
func (e *Engine) chargeOne(ctx context.Context, id uint32, now uint64) (*vault.Subscription, error) {
	ctx = e.logg.WithSubscriptionID(ctx, id)

	sub, err := e.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.ExpiredAt(now) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "subscription has expired").
			WithDetails(map[string]any{"expiration": *sub.Expiration})
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotActive, "subscription is not active").
			WithDetails(map[string]any{"status": sub.Status})
	}

	// ChargedPeriod is a high-water mark: any period at or below it has
	// already been billed, so backward clock drift cannot double-charge.
	period := sub.PeriodIndex(now)
	charged, ok, err := e.repo.GetChargedPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok && charged >= period {
		return nil, pkgerrors.New(pkgerrors.CodeReplay, "billing period already charged").
			WithDetails(map[string]any{"period_index": period})
	}

	nextAt, err := sub.NextChargeTimestamp()
	if err != nil {
		return nil, err
	}
	if now < nextAt {
		return nil, pkgerrors.New(pkgerrors.CodeIntervalNotElapsed, "billing interval has not elapsed").
			WithDetails(map[string]any{"next_charge_at": nextAt})
	}

	if sub.PrepaidBalance.LessThan(sub.Amount) {
		sub.Status = enums.SubscriptionStatusInsufficientBalance
		if err := e.repo.PutSubscription(ctx, id, sub); err != nil {
			return nil, err
		}
		e.logg.Warn(ctx, "charge failed: prepaid balance insufficient")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "prepaid balance insufficient").
			WithDetails(map[string]any{"balance": sub.PrepaidBalance.String(), "amount": sub.Amount.String()})
	}

	remaining := sub.PrepaidBalance.Sub(sub.Amount)
	if remaining.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeUnderflow, "balance deduction would go negative")
	}
	sub.PrepaidBalance = remaining
	sub.LastPaymentTimestamp = now
	if err := e.repo.PutSubscription(ctx, id, sub); err != nil {
		return nil, err
	}
	if err := e.repo.SetChargedPeriod(ctx, id, period); err != nil {
		return nil, err
	}

	e.publishTransfer(ctx, id, sub, period, now)
	e.logg.Info(ctx, "subscription charged")
	return sub, nil
}

// publishTransfer emits the settlement instruction for a committed charge.
// The charge is already durable at this point: a publish failure is
// recorded for reconciliation, never rolled back.
func (e *Engine) publishTransfer(ctx context.Context, id uint32, sub *vault.Subscription, period, now uint64) {
	if e.ledger == nil {
		return
	}
	fromVault, err := e.repo.GetToken(ctx)
	if err != nil {
		e.metrics.IncTransferPublishFailure()
		e.logg.Error(ctx, "transfer instruction not published: token account unavailable", err)
		return
	}
	instruction := ledger.Instruction{
		SubscriptionID: id,
		FromVault:      fromVault,
		ToAccount:      sub.Merchant,
		Amount:         sub.Amount,
		PeriodIndex:    period,
		Timestamp:      now,
	}
	if err := e.ledger.PublishTransfer(ctx, instruction); err != nil {
		e.metrics.IncTransferPublishFailure()
		e.logg.Error(ctx, "transfer instruction not published", err)
	}
}

func (e *Engine) requireAdmin(ctx context.Context, caller uuid.UUID) error {
	admin, err := e.repo.GetAdmin(ctx)
	if err != nil {
		return err
	}
	if caller != admin {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "admin account required")
	}
	return e.authz.RequireAuthorized(ctx, caller)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(pkgerrors.CodeOf(err))
}
