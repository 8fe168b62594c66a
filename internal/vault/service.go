package vault

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/internal/keyspace"
	"github.com/vaultpay/subvault-backend/internal/ledger"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

// Authorizer decides whether the caller has proven control of an account.
// Every mutating operation demands consent from the account it acts for.
type Authorizer interface {
	RequireAuthorized(ctx context.Context, account uuid.UUID) error
}

// Clock supplies the current time as a unix timestamp. The charge engine
// and worker inject fixed clocks in tests.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// CreateParams are the caller-supplied fields for a new subscription.
type CreateParams struct {
	Subscriber      uuid.UUID
	Merchant        uuid.UUID
	Amount          decimal.Decimal
	IntervalSeconds uint64
	UsageEnabled    bool
	Expiration      *uint64
}

// NextChargeInfo describes when a subscription can next be charged.
type NextChargeInfo struct {
	SubscriptionID uint32                   `json:"subscription_id"`
	Status         enums.SubscriptionStatus `json:"status"`
	NextChargeAt   uint64                   `json:"next_charge_at"`
	PeriodIndex    uint64                   `json:"period_index"`
	Due            bool                     `json:"due"`
}

// Service owns subscription lifecycle and vault administration.
type Service struct {
	repo      Repository
	authz     Authorizer
	clock     Clock
	transfers ledger.Publisher
	log       *logger.Logger
}

func NewService(repo Repository, authz Authorizer, clock Clock, transfers ledger.Publisher, log *logger.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{repo: repo, authz: authz, clock: clock, transfers: transfers, log: log}
}

// Repo exposes the underlying repository for components that share it.
func (s *Service) Repo() Repository {
	return s.repo
}

// Init configures the vault exactly once: the caller becomes admin, and the
// token account and minimum top-up are recorded. The schema version write
// is last so a partially initialized vault still reads as uninitialized.
func (s *Service) Init(ctx context.Context, caller, token uuid.UUID, minTopup decimal.Decimal) error {
	if err := s.authz.RequireAuthorized(ctx, caller); err != nil {
		return err
	}
	if _, ok, err := s.repo.GetSchemaVersion(ctx); err != nil {
		return err
	} else if ok {
		return pkgerrors.New(pkgerrors.CodeAlreadyInitialized, "vault is already initialized")
	}
	if token == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "token account required")
	}
	if !minTopup.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "minimum top-up must be positive")
	}

	if err := s.repo.SetToken(ctx, token); err != nil {
		return err
	}
	if err := s.repo.SetAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.repo.SetMinTopup(ctx, minTopup); err != nil {
		return err
	}
	if err := s.repo.SetSchemaVersion(ctx, keyspace.CurrentSchemaVersion); err != nil {
		return err
	}

	s.log.Info(s.log.WithAccountID(ctx, caller.String()), "vault initialized")
	return nil
}

// Create registers a new subscription for the subscriber. The subscriber
// must authorize the call; the first billing period starts now.
func (s *Service) Create(ctx context.Context, params CreateParams) (uint32, *Subscription, error) {
	if err := s.requireInitialized(ctx); err != nil {
		return 0, nil, err
	}
	if err := s.authz.RequireAuthorized(ctx, params.Subscriber); err != nil {
		return 0, nil, err
	}
	if params.Merchant == uuid.Nil {
		return 0, nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "merchant account required")
	}
	if !params.Amount.IsPositive() {
		return 0, nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "subscription amount must be positive")
	}
	if params.IntervalSeconds == 0 {
		return 0, nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "billing interval must be positive")
	}

	now := s.clock.Now()
	if params.Expiration != nil && *params.Expiration <= now {
		return 0, nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "expiration must be in the future")
	}

	id, err := s.repo.AllocateID(ctx)
	if err != nil {
		return 0, nil, err
	}

	sub := &Subscription{
		Subscriber:           params.Subscriber,
		Merchant:             params.Merchant,
		Amount:               params.Amount,
		IntervalSeconds:      params.IntervalSeconds,
		LastPaymentTimestamp: now,
		Status:               enums.SubscriptionStatusActive,
		PrepaidBalance:       decimal.Zero,
		UsageEnabled:         params.UsageEnabled,
		Expiration:           params.Expiration,
	}
	if err := s.repo.PutSubscription(ctx, id, sub); err != nil {
		return 0, nil, err
	}
	if err := s.repo.SetIdemKey(ctx, id, sub.CreationDigest()); err != nil {
		return 0, nil, err
	}
	if err := s.repo.AppendMerchantSubscription(ctx, params.Merchant, id); err != nil {
		return 0, nil, err
	}

	s.log.Info(s.log.WithSubscriptionID(ctx, id), "subscription created")
	return id, sub, nil
}

// Deposit adds prepaid funds. Only the subscriber may deposit, the amount
// must meet the minimum top-up, and a deposit never changes the status: a
// subscription in insufficient_balance stays there until resumed.
func (s *Service) Deposit(ctx context.Context, caller uuid.UUID, id uint32, amount decimal.Decimal) (*Subscription, error) {
	if err := s.authz.RequireAuthorized(ctx, caller); err != nil {
		return nil, err
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != sub.Subscriber {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the subscriber may deposit")
	}
	if sub.Status == enums.SubscriptionStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeNotActive, "cannot deposit to a cancelled subscription")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "deposit amount must be positive")
	}
	minTopup, err := s.repo.GetMinTopup(ctx)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(minTopup) {
		return nil, pkgerrors.New(pkgerrors.CodeBelowMinimumTopup, "deposit below minimum top-up").
			WithDetails(map[string]any{"minimum_topup": minTopup.String()})
	}

	sub.PrepaidBalance = sub.PrepaidBalance.Add(amount)
	if err := s.repo.PutSubscription(ctx, id, sub); err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithSubscriptionID(ctx, id), "deposit recorded")
	return sub, nil
}

// Withdraw returns the remaining prepaid balance of a cancelled
// subscription to its subscriber. The balance is zeroed first; the refund
// instruction follows the same publish-after-commit policy as charges.
func (s *Service) Withdraw(ctx context.Context, caller uuid.UUID, id uint32) (decimal.Decimal, *Subscription, error) {
	if err := s.authz.RequireAuthorized(ctx, caller); err != nil {
		return decimal.Zero, nil, err
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if caller != sub.Subscriber {
		return decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the subscriber may withdraw")
	}
	if sub.Status != enums.SubscriptionStatusCancelled {
		return decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "subscription must be cancelled before withdrawing").
			WithDetails(map[string]any{"status": sub.Status})
	}
	if !sub.PrepaidBalance.IsPositive() {
		return decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "no prepaid balance to withdraw")
	}

	amount := sub.PrepaidBalance
	sub.PrepaidBalance = decimal.Zero
	if err := s.repo.PutSubscription(ctx, id, sub); err != nil {
		return decimal.Zero, nil, err
	}

	ctx = s.log.WithSubscriptionID(ctx, id)
	s.publishRefund(ctx, id, sub, amount)
	s.log.Info(s.log.WithField(ctx, "amount", amount.String()), "prepaid balance withdrawn")
	return amount, sub, nil
}

// publishRefund emits the refund instruction for a committed withdrawal.
// The withdrawal is already durable: a publish failure is logged for
// reconciliation, never rolled back.
func (s *Service) publishRefund(ctx context.Context, id uint32, sub *Subscription, amount decimal.Decimal) {
	if s.transfers == nil {
		return
	}
	fromVault, err := s.repo.GetToken(ctx)
	if err != nil {
		s.log.Error(ctx, "refund instruction not published: token account unavailable", err)
		return
	}
	now := s.clock.Now()
	instruction := ledger.Instruction{
		SubscriptionID: id,
		FromVault:      fromVault,
		ToAccount:      sub.Subscriber,
		Amount:         amount,
		PeriodIndex:    sub.PeriodIndex(now),
		Timestamp:      now,
	}
	if err := s.transfers.PublishTransfer(ctx, instruction); err != nil {
		s.log.Error(ctx, "refund instruction not published", err)
	}
}

// Pause suspends billing. Only active subscriptions can pause.
func (s *Service) Pause(ctx context.Context, caller uuid.UUID, id uint32) (*Subscription, error) {
	return s.transition(ctx, caller, id, enums.SubscriptionStatusPaused)
}

// Resume reactivates a paused or underfunded subscription.
func (s *Service) Resume(ctx context.Context, caller uuid.UUID, id uint32) (*Subscription, error) {
	return s.transition(ctx, caller, id, enums.SubscriptionStatusActive)
}

// Cancel terminates the subscription permanently.
func (s *Service) Cancel(ctx context.Context, caller uuid.UUID, id uint32) (*Subscription, error) {
	return s.transition(ctx, caller, id, enums.SubscriptionStatusCancelled)
}

func (s *Service) transition(ctx context.Context, caller uuid.UUID, id uint32, target enums.SubscriptionStatus) (*Subscription, error) {
	if err := s.authz.RequireAuthorized(ctx, caller); err != nil {
		return nil, err
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != sub.Subscriber && caller != sub.Merchant {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is neither subscriber nor merchant")
	}
	if sub.Status == target {
		return sub, nil
	}
	if !sub.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "status transition disallowed").
			WithDetails(map[string]any{"from": sub.Status, "to": target})
	}

	sub.Status = target
	if err := s.repo.PutSubscription(ctx, id, sub); err != nil {
		return nil, err
	}

	ctx = s.log.WithSubscriptionID(ctx, id)
	s.log.Info(s.log.WithField(ctx, "status", target), "subscription status changed")
	return sub, nil
}

// GetSubscription returns the stored record.
func (s *Service) GetSubscription(ctx context.Context, id uint32) (*Subscription, error) {
	return s.repo.GetSubscription(ctx, id)
}

// NextCharge reports when the subscription can next be charged and whether
// that moment has already passed.
func (s *Service) NextCharge(ctx context.Context, id uint32) (*NextChargeInfo, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	nextAt, err := sub.NextChargeTimestamp()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &NextChargeInfo{
		SubscriptionID: id,
		Status:         sub.Status,
		NextChargeAt:   nextAt,
		PeriodIndex:    sub.PeriodIndex(now),
		Due:            sub.Status == enums.SubscriptionStatusActive && now >= nextAt && !sub.ExpiredAt(now),
	}, nil
}

// EstimateTopup returns the deposit needed to cover the next n billing
// periods beyond the current prepaid balance.
func (s *Service) EstimateTopup(ctx context.Context, id uint32, periods uint32) (decimal.Decimal, error) {
	if periods == 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidInput, "periods must be positive")
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	required := sub.Amount.Mul(decimal.NewFromInt(int64(periods)))
	shortfall := required.Sub(sub.PrepaidBalance)
	if shortfall.IsNegative() {
		return decimal.Zero, nil
	}
	return shortfall, nil
}

// ListMerchantSubscriptions returns the ids ever created for the merchant.
func (s *Service) ListMerchantSubscriptions(ctx context.Context, merchant uuid.UUID) ([]uint32, error) {
	if merchant == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "merchant account required")
	}
	return s.repo.MerchantSubscriptions(ctx, merchant)
}

// GetMinTopup returns the configured minimum deposit.
func (s *Service) GetMinTopup(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.GetMinTopup(ctx)
}

// SetMinTopup updates the minimum deposit. Admin only.
func (s *Service) SetMinTopup(ctx context.Context, caller uuid.UUID, amount decimal.Decimal) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "minimum top-up must be positive")
	}
	if err := s.repo.SetMinTopup(ctx, amount); err != nil {
		return err
	}
	s.log.Info(s.log.WithField(ctx, "minimum_topup", amount.String()), "minimum top-up updated")
	return nil
}

// GetAdmin returns the current admin account.
func (s *Service) GetAdmin(ctx context.Context) (uuid.UUID, error) {
	return s.repo.GetAdmin(ctx)
}

// GetToken returns the token vault account.
func (s *Service) GetToken(ctx context.Context) (uuid.UUID, error) {
	return s.repo.GetToken(ctx)
}

// RotateAdmin hands admin control to a new account. The current admin must
// authorize the call.
func (s *Service) RotateAdmin(ctx context.Context, caller, newAdmin uuid.UUID) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if newAdmin == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "new admin account required")
	}
	if err := s.repo.SetAdmin(ctx, newAdmin); err != nil {
		return err
	}
	s.log.Info(s.log.WithAccountID(ctx, newAdmin.String()), "admin rotated")
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, caller uuid.UUID) error {
	admin, err := s.repo.GetAdmin(ctx)
	if err != nil {
		return err
	}
	if caller != admin {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "admin account required")
	}
	return s.authz.RequireAuthorized(ctx, caller)
}

func (s *Service) requireInitialized(ctx context.Context) error {
	if _, ok, err := s.repo.GetSchemaVersion(ctx); err != nil {
		return err
	} else if !ok {
		return pkgerrors.New(pkgerrors.CodeNotInitialized, "vault is not initialized")
	}
	return nil
}
