package auth

import (
	"context"

	"github.com/google/uuid"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
)

type contextKey string

const ctxAccountID contextKey = "account_id"

// WithAccount injects the authenticated account id into the context.
func WithAccount(ctx context.Context, accountID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccountID, accountID)
}

// AccountFromContext returns the authenticated account id, or uuid.Nil.
func AccountFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxAccountID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// ContextAuthorizer grants an operation only when the account demanding
// consent matches the authenticated account carried in the context. The API
// middleware seeds the context from the verified bearer token.
type ContextAuthorizer struct{}

func (ContextAuthorizer) RequireAuthorized(ctx context.Context, account uuid.UUID) error {
	if account == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "account id required")
	}
	if AccountFromContext(ctx) != account {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller has not authorized this operation")
	}
	return nil
}

// StaticAuthorizer grants operations for a fixed allow-list of accounts.
// The charge worker runs with the admin account pre-authorized.
type StaticAuthorizer struct {
	allowed map[uuid.UUID]struct{}
}

func NewStaticAuthorizer(accounts ...uuid.UUID) *StaticAuthorizer {
	allowed := make(map[uuid.UUID]struct{}, len(accounts))
	for _, account := range accounts {
		allowed[account] = struct{}{}
	}
	return &StaticAuthorizer{allowed: allowed}
}

func (s *StaticAuthorizer) RequireAuthorized(_ context.Context, account uuid.UUID) error {
	if s == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authorizer not configured")
	}
	if _, ok := s.allowed[account]; !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller has not authorized this operation")
	}
	return nil
}
