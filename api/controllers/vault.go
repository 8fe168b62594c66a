package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/api/responses"
	"github.com/vaultpay/subvault-backend/api/validators"
	"github.com/vaultpay/subvault-backend/internal/migration"
	"github.com/vaultpay/subvault-backend/internal/vault"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type vaultInitRequest struct {
	TokenAccount string          `json:"token_account" validate:"required,uuid"`
	MinTopup     decimal.Decimal `json:"min_topup" validate:"required"`
}

// VaultInit configures the vault; the authenticated caller becomes admin.
func VaultInit(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vaultInitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := uuid.Parse(req.TokenAccount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid token account"))
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		if err := service.Init(r.Context(), caller, token, req.MinTopup); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"admin":         caller,
			"token_account": token,
			"min_topup":     req.MinTopup,
		})
	}
}

// VaultVersion reports the stored schema version.
func VaultVersion(service *migration.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := service.Version(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uint32{"schema_version": version})
	}
}

type vaultMigrateRequest struct {
	FromVersion uint32 `json:"from_version"`
}

// VaultMigrate upgrades the storage schema. Admin only.
func VaultMigrate(service *migration.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vaultMigrateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		if err := service.Migrate(r.Context(), caller, req.FromVersion); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		version, err := service.Version(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uint32{"schema_version": version})
	}
}

// VaultGetMinTopup returns the minimum deposit threshold.
func VaultGetMinTopup(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minTopup, err := service.GetMinTopup(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]decimal.Decimal{"min_topup": minTopup})
	}
}

type minTopupRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// VaultSetMinTopup updates the minimum deposit threshold. Admin only.
func VaultSetMinTopup(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req minTopupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		if err := service.SetMinTopup(r.Context(), caller, req.Amount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]decimal.Decimal{"min_topup": req.Amount})
	}
}

// VaultGetAdmin returns the current admin account.
func VaultGetAdmin(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, err := service.GetAdmin(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uuid.UUID{"admin": admin})
	}
}

type rotateAdminRequest struct {
	NewAdmin string `json:"new_admin" validate:"required,uuid"`
}

// VaultRotateAdmin hands admin control to a new account. Admin only.
func VaultRotateAdmin(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rotateAdminRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		newAdmin, err := uuid.Parse(req.NewAdmin)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid admin account"))
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		if err := service.RotateAdmin(r.Context(), caller, newAdmin); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uuid.UUID{"admin": newAdmin})
	}
}
