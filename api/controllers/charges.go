package controllers

import (
	"net/http"

	"github.com/vaultpay/subvault-backend/api/responses"
	"github.com/vaultpay/subvault-backend/api/validators"
	"github.com/vaultpay/subvault-backend/internal/charges"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type chargeRequest struct {
	SubscriptionID uint32 `json:"subscription_id"`
}

// ChargeOne charges a single subscription for the current billing period.
// Admin only.
func ChargeOne(engine *charges.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		sub, err := engine.Charge(r.Context(), caller, req.SubscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{SubscriptionID: req.SubscriptionID, Subscription: sub})
	}
}

type batchChargeRequest struct {
	SubscriptionIDs []uint32 `json:"subscription_ids" validate:"required,min=1"`
}

// ChargeBatch charges each listed subscription independently. Admin only.
func ChargeBatch(engine *charges.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		results, err := engine.BatchCharge(r.Context(), caller, req.SubscriptionIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"results": results})
	}
}
