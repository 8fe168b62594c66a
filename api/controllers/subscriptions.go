package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultpay/subvault-backend/api/responses"
	"github.com/vaultpay/subvault-backend/api/validators"
	"github.com/vaultpay/subvault-backend/internal/vault"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type subscriptionResponse struct {
	SubscriptionID uint32 `json:"subscription_id"`
	*vault.Subscription
}

type createSubscriptionRequest struct {
	Merchant        string          `json:"merchant" validate:"required,uuid"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	IntervalSeconds uint64          `json:"interval_seconds" validate:"required,gt=0"`
	UsageEnabled    bool            `json:"usage_enabled"`
	Expiration      *uint64         `json:"expiration,omitempty"`
}

// SubscriptionCreate registers a subscription for the authenticated account.
func SubscriptionCreate(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		merchant, err := uuid.Parse(req.Merchant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid merchant account"))
			return
		}

		id, sub, err := service.Create(r.Context(), vault.CreateParams{
			Subscriber:      pkgauth.AccountFromContext(r.Context()),
			Merchant:        merchant,
			Amount:          req.Amount,
			IntervalSeconds: req.IntervalSeconds,
			UsageEnabled:    req.UsageEnabled,
			Expiration:      req.Expiration,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, subscriptionResponse{SubscriptionID: id, Subscription: sub})
	}
}

// SubscriptionGet returns a stored subscription record.
func SubscriptionGet(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := service.GetSubscription(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{SubscriptionID: id, Subscription: sub})
	}
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// SubscriptionDeposit adds prepaid funds to a subscription.
func SubscriptionDeposit(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req depositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		caller := pkgauth.AccountFromContext(r.Context())
		sub, err := service.Deposit(r.Context(), caller, id, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{SubscriptionID: id, Subscription: sub})
	}
}

// SubscriptionWithdraw returns the remaining prepaid balance of a
// cancelled subscription to the authenticated subscriber.
func SubscriptionWithdraw(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caller := pkgauth.AccountFromContext(r.Context())
		amount, sub, err := service.Withdraw(r.Context(), caller, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"subscription_id": id,
			"withdrawn":       amount,
			"subscription":    sub,
		})
	}
}

// SubscriptionPause suspends billing.
func SubscriptionPause(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(service.Pause, logg)
}

// SubscriptionResume reactivates billing.
func SubscriptionResume(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(service.Resume, logg)
}

// SubscriptionCancel terminates the subscription.
func SubscriptionCancel(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(service.Cancel, logg)
}

func transitionHandler(op func(ctx context.Context, caller uuid.UUID, id uint32) (*vault.Subscription, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caller := pkgauth.AccountFromContext(r.Context())
		sub, err := op(r.Context(), caller, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{SubscriptionID: id, Subscription: sub})
	}
}

func subscriptionID(r *http.Request) (uint32, error) {
	raw := chi.URLParam(r, "id")
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid subscription id")
	}
	return uint32(value), nil
}

// SubscriptionNextCharge reports when the subscription can next be charged.
func SubscriptionNextCharge(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := service.NextCharge(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// SubscriptionTopupEstimate returns the deposit needed to cover the next
// n billing periods.
func SubscriptionTopupEstimate(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := subscriptionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		periods, err := strconv.ParseUint(r.URL.Query().Get("periods"), 10, 32)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid periods parameter"))
			return
		}
		estimate, err := service.EstimateTopup(r.Context(), id, uint32(periods))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"subscription_id": id,
			"periods":         periods,
			"required_topup":  estimate,
		})
	}
}

// MerchantSubscriptions lists the subscription ids created for a merchant.
func MerchantSubscriptions(service *vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchant, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid merchant id"))
			return
		}
		ids, err := service.ListMerchantSubscriptions(r.Context(), merchant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ids == nil {
			ids = []uint32{}
		}
		responses.WriteSuccess(w, map[string]any{
			"merchant":         merchant,
			"subscription_ids": ids,
		})
	}
}
