package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vaultpay/subvault-backend/api/routes"
	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/ledger"
	"github.com/vaultpay/subvault-backend/internal/migration"
	"github.com/vaultpay/subvault-backend/internal/vault"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	"github.com/vaultpay/subvault-backend/pkg/config"
	"github.com/vaultpay/subvault-backend/pkg/kv"
	"github.com/vaultpay/subvault-backend/pkg/logger"
	"github.com/vaultpay/subvault-backend/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	store, err := kv.NewRedis(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var transfers ledger.Publisher
	if cfg.PubSub.ProjectID != "" {
		pubsubPublisher, err := ledger.NewPubSub(context.Background(), cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap transfer publisher", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubPublisher.Close(); err != nil {
				logg.Error(context.Background(), "error closing transfer publisher", err)
			}
		}()
		transfers = pubsubPublisher
	} else {
		logg.Warn(context.Background(), "no pubsub project configured, transfer instructions will be dropped")
		transfers = ledger.NewNop(logg)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	chargeMetrics := metrics.NewChargeMetrics(registry)

	repo := vault.NewRepository(store)
	authz := pkgauth.ContextAuthorizer{}
	vaultService := vault.NewService(repo, authz, nil, transfers, logg)
	chargeEngine := charges.NewEngine(repo, authz, nil, transfers, chargeMetrics, logg, cfg.Vault.BatchMaxSize)
	migrationService := migration.NewService(store, repo, authz, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			Store:     store,
			Vault:     vaultService,
			Charges:   chargeEngine,
			Migration: migrationService,
			Registry:  registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
