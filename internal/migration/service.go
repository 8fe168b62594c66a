// Package migration re-keys stored vault state between schema versions.
package migration

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/vaultpay/subvault-backend/internal/keyspace"
	"github.com/vaultpay/subvault-backend/internal/vault"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/kv"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

// Service migrates legacy storage layouts to the current schema. Migration
// steps are restartable: the schema version is only written after every
// other key has been moved, so an interrupted run resumes from the start.
type Service struct {
	store kv.Store
	repo  vault.Repository
	authz vault.Authorizer
	logg  *logger.Logger
}

func NewService(store kv.Store, repo vault.Repository, authz vault.Authorizer, logg *logger.Logger) *Service {
	return &Service{store: store, repo: repo, authz: authz, logg: logg}
}

// Version returns the stored schema version, or 0 for stores written before
// versioning existed.
func (s *Service) Version(ctx context.Context) (uint32, error) {
	version, ok, err := s.repo.GetSchemaVersion(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return version, nil
}

// Migrate upgrades the store from the given version to the current schema.
// Calling it on an already current store is a no-op. Admin only.
func (s *Service) Migrate(ctx context.Context, caller uuid.UUID, fromVersion uint32) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}

	stored, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if stored == keyspace.CurrentSchemaVersion {
		s.logg.Info(ctx, "storage schema already current")
		return nil
	}
	if fromVersion != stored {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "from_version does not match stored schema version").
			WithDetails(map[string]any{"from_version": fromVersion, "stored_version": stored})
	}

	switch fromVersion {
	case 0:
		if err := s.migrateV0(ctx); err != nil {
			return err
		}
	default:
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "unknown schema version").
			WithDetails(map[string]any{"from_version": fromVersion})
	}

	if err := s.repo.SetSchemaVersion(ctx, keyspace.CurrentSchemaVersion); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "schema_version", keyspace.CurrentSchemaVersion), "storage schema migrated")
	return nil
}

// migrateV0 moves subscriptions and the id counter out of the bare legacy
// keys into the namespaced keyspace, rebuilding the merchant index as it
// goes. The legacy keys are deleted once their values are re-homed.
func (s *Service) migrateV0(ctx context.Context) error {
	nextID, err := s.legacyNextID(ctx)
	if err != nil {
		return err
	}

	for id := uint32(0); id < nextID; id++ {
		legacyKey := keyspace.LegacySub(id)
		raw, ok, err := s.store.Get(ctx, legacyKey)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading legacy subscription")
		}
		if !ok {
			continue
		}

		var sub vault.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding legacy subscription").
				WithDetails(map[string]any{"subscription_id": id})
		}
		if err := s.repo.PutSubscription(ctx, id, &sub); err != nil {
			return err
		}
		if err := s.repo.AppendMerchantSubscription(ctx, sub.Merchant, id); err != nil {
			return err
		}
		if err := s.store.Del(ctx, legacyKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting legacy subscription")
		}
	}

	counter := strconv.FormatUint(uint64(nextID), 10)
	if err := s.store.Set(ctx, keyspace.NextID().Encode(), counter); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing id counter")
	}
	if err := s.store.Del(ctx, keyspace.LegacyNextIDKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting legacy id counter")
	}
	return nil
}

func (s *Service) legacyNextID(ctx context.Context) (uint32, error) {
	raw, ok, err := s.store.Get(ctx, keyspace.LegacyNextIDKey)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading legacy id counter")
	}
	if !ok {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding legacy id counter")
	}
	return uint32(value), nil
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
