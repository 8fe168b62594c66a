package vault

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/internal/keyspace"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/kv"
)

// Repository is the persistence surface for the vault core. All reads and
// writes go through the canonical keyspace; callers never see raw keys.
type Repository interface {
	GetSubscription(ctx context.Context, id uint32) (*Subscription, error)
	PutSubscription(ctx context.Context, id uint32, sub *Subscription) error

	// AllocateID returns the next subscription id and advances the counter.
	// The counter never wraps: at the maximum id the allocation fails with
	// OVERFLOW and the counter is left untouched.
	AllocateID(ctx context.Context) (uint32, error)
	NextID(ctx context.Context) (uint32, error)

	GetChargedPeriod(ctx context.Context, id uint32) (uint64, bool, error)
	SetChargedPeriod(ctx context.Context, id uint32, period uint64) error

	GetIdemKey(ctx context.Context, id uint32) (string, bool, error)
	SetIdemKey(ctx context.Context, id uint32, digest string) error

	MerchantSubscriptions(ctx context.Context, merchant uuid.UUID) ([]uint32, error)
	AppendMerchantSubscription(ctx context.Context, merchant uuid.UUID, id uint32) error

	GetToken(ctx context.Context) (uuid.UUID, error)
	SetToken(ctx context.Context, token uuid.UUID) error
	GetAdmin(ctx context.Context) (uuid.UUID, error)
	SetAdmin(ctx context.Context, admin uuid.UUID) error
	GetMinTopup(ctx context.Context) (decimal.Decimal, error)
	SetMinTopup(ctx context.Context, amount decimal.Decimal) error

	GetSchemaVersion(ctx context.Context) (uint32, bool, error)
	SetSchemaVersion(ctx context.Context, version uint32) error
}

type kvRepository struct {
	store kv.Store
}

// NewRepository builds a Repository backed by the given store.
func NewRepository(store kv.Store) Repository {
	return &kvRepository{store: store}
}

func (r *kvRepository) GetSubscription(ctx context.Context, id uint32) (*Subscription, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.Sub(id).Encode())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading subscription")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found").
			WithDetails(map[string]any{"subscription_id": id})
	}
	var sub Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding subscription record")
	}
	return &sub, nil
}

func (r *kvRepository) PutSubscription(ctx context.Context, id uint32, sub *Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding subscription record")
	}
	if err := r.store.Set(ctx, keyspace.Sub(id).Encode(), string(raw)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing subscription")
	}
	return nil
}

func (r *kvRepository) AllocateID(ctx context.Context) (uint32, error) {
	current, err := r.NextID(ctx)
	if err != nil {
		return 0, err
	}
	if current == math.MaxUint32 {
		return 0, pkgerrors.New(pkgerrors.CodeOverflow, "subscription id space exhausted")
	}
	next := strconv.FormatUint(uint64(current)+1, 10)
	if err := r.store.Set(ctx, keyspace.NextID().Encode(), next); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advancing id counter")
	}
	return current, nil
}

func (r *kvRepository) NextID(ctx context.Context) (uint32, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.NextID().Encode())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading id counter")
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding id counter")
	}
	return uint32(value), nil
}

func (r *kvRepository) GetChargedPeriod(ctx context.Context, id uint32) (uint64, bool, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.ChargedPeriod(id).Encode())
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading charged period")
	}
	if !ok {
		return 0, false, nil
	}
	period, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding charged period")
	}
	return period, true, nil
}

func (r *kvRepository) SetChargedPeriod(ctx context.Context, id uint32, period uint64) error {
	value := strconv.FormatUint(period, 10)
	if err := r.store.Set(ctx, keyspace.ChargedPeriod(id).Encode(), value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing charged period")
	}
	return nil
}

func (r *kvRepository) GetIdemKey(ctx context.Context, id uint32) (string, bool, error) {
	digest, ok, err := r.store.Get(ctx, keyspace.IdemKey(id).Encode())
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading idempotency key")
	}
	return digest, ok, nil
}

func (r *kvRepository) SetIdemKey(ctx context.Context, id uint32, digest string) error {
	if err := r.store.Set(ctx, keyspace.IdemKey(id).Encode(), digest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing idempotency key")
	}
	return nil
}

func (r *kvRepository) MerchantSubscriptions(ctx context.Context, merchant uuid.UUID) ([]uint32, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.MerchantSubs(merchant).Encode())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading merchant index")
	}
	if !ok {
		return nil, nil
	}
	var ids []uint32
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding merchant index")
	}
	return ids, nil
}

func (r *kvRepository) AppendMerchantSubscription(ctx context.Context, merchant uuid.UUID, id uint32) error {
	ids, err := r.MerchantSubscriptions(ctx, merchant)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding merchant index")
	}
	if err := r.store.Set(ctx, keyspace.MerchantSubs(merchant).Encode(), string(raw)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing merchant index")
	}
	return nil
}

func (r *kvRepository) GetToken(ctx context.Context) (uuid.UUID, error) {
	return r.getAccount(ctx, keyspace.Token().Encode(), "token account")
}

func (r *kvRepository) SetToken(ctx context.Context, token uuid.UUID) error {
	return r.setAccount(ctx, keyspace.Token().Encode(), token, "token account")
}

func (r *kvRepository) GetAdmin(ctx context.Context) (uuid.UUID, error) {
	return r.getAccount(ctx, keyspace.Admin().Encode(), "admin account")
}

func (r *kvRepository) SetAdmin(ctx context.Context, admin uuid.UUID) error {
	return r.setAccount(ctx, keyspace.Admin().Encode(), admin, "admin account")
}

func (r *kvRepository) GetMinTopup(ctx context.Context) (decimal.Decimal, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.MinTopup().Encode())
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading minimum top-up")
	}
	if !ok {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotInitialized, "minimum top-up not configured")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding minimum top-up")
	}
	return amount, nil
}

func (r *kvRepository) SetMinTopup(ctx context.Context, amount decimal.Decimal) error {
	if err := r.store.Set(ctx, keyspace.MinTopup().Encode(), amount.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing minimum top-up")
	}
	return nil
}

func (r *kvRepository) GetSchemaVersion(ctx context.Context) (uint32, bool, error) {
	raw, ok, err := r.store.Get(ctx, keyspace.SchemaVersion().Encode())
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading schema version")
	}
	if !ok {
		return 0, false, nil
	}
	version, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding schema version")
	}
	return uint32(version), true, nil
}

func (r *kvRepository) SetSchemaVersion(ctx context.Context, version uint32) error {
	value := strconv.FormatUint(uint64(version), 10)
	if err := r.store.Set(ctx, keyspace.SchemaVersion().Encode(), value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing schema version")
	}
	return nil
}

func (r *kvRepository) getAccount(ctx context.Context, key, label string) (uuid.UUID, error) {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading "+label)
	}
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotInitialized, label+" not configured")
	}
	account, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding "+label)
	}
	return account, nil
}

func (r *kvRepository) setAccount(ctx context.Context, key string, account uuid.UUID, label string) error {
	if err := r.store.Set(ctx, key, account.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing "+label)
	}
	return nil
}
