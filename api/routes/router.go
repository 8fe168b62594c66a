package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultpay/subvault-backend/api/controllers"
	"github.com/vaultpay/subvault-backend/api/middleware"
	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/migration"
	"github.com/vaultpay/subvault-backend/internal/vault"
	"github.com/vaultpay/subvault-backend/pkg/config"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

// RouterParams bundle the dependencies the API surface needs.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     controllers.Pinger
	Vault     *vault.Service
	Charges   *charges.Engine
	Migration *migration.Service
	Registry  *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Store))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/vault", func(r chi.Router) {
			r.Post("/init", controllers.VaultInit(params.Vault, logg))
			r.Get("/version", controllers.VaultVersion(params.Migration, logg))
			r.Post("/migrate", controllers.VaultMigrate(params.Migration, logg))
			r.Get("/min-topup", controllers.VaultGetMinTopup(params.Vault, logg))
			r.Put("/min-topup", controllers.VaultSetMinTopup(params.Vault, logg))
			r.Get("/admin", controllers.VaultGetAdmin(params.Vault, logg))
			r.Post("/admin/rotate", controllers.VaultRotateAdmin(params.Vault, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(params.Vault, logg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionGet(params.Vault, logg))
				r.Post("/deposit", controllers.SubscriptionDeposit(params.Vault, logg))
				r.Post("/pause", controllers.SubscriptionPause(params.Vault, logg))
				r.Post("/resume", controllers.SubscriptionResume(params.Vault, logg))
				r.Post("/cancel", controllers.SubscriptionCancel(params.Vault, logg))
				r.Post("/withdraw", controllers.SubscriptionWithdraw(params.Vault, logg))
				r.Get("/next-charge", controllers.SubscriptionNextCharge(params.Vault, logg))
				r.Get("/topup-estimate", controllers.SubscriptionTopupEstimate(params.Vault, logg))
			})
		})

		r.Route("/merchants", func(r chi.Router) {
			r.Get("/{id}/subscriptions", controllers.MerchantSubscriptions(params.Vault, logg))
		})

		r.Route("/charges", func(r chi.Router) {
			r.Post("/", controllers.ChargeOne(params.Charges, logg))
			r.Post("/batch", controllers.ChargeBatch(params.Charges, logg))
		})
	})

	return r
}
