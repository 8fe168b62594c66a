package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/ledger"
	"github.com/vaultpay/subvault-backend/internal/vault"
	"github.com/vaultpay/subvault-backend/internal/worker"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	"github.com/vaultpay/subvault-backend/pkg/config"
	"github.com/vaultpay/subvault-backend/pkg/kv"
	"github.com/vaultpay/subvault-backend/pkg/logger"
	"github.com/vaultpay/subvault-backend/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "charge-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "charge-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := kv.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	repo := vault.NewRepository(store)

	// The worker charges on behalf of the stored admin. Restart the worker
	// after rotating the admin account.
	admin, err := repo.GetAdmin(ctx)
	if err != nil {
		logg.Error(ctx, "vault admin unavailable, initialize the vault first", err)
		os.Exit(1)
	}
	authz := pkgauth.NewStaticAuthorizer(admin)

	var transfers ledger.Publisher
	if cfg.PubSub.ProjectID != "" {
		pubsubPublisher, err := ledger.NewPubSub(ctx, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap transfer publisher", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubPublisher.Close(); err != nil {
				logg.Error(ctx, "error closing transfer publisher", err)
			}
		}()
		transfers = pubsubPublisher
	} else {
		logg.Warn(ctx, "no pubsub project configured, transfer instructions will be dropped")
		transfers = ledger.NewNop(logg)
	}

	registry := prometheus.NewRegistry()
	chargeMetrics := metrics.NewChargeMetrics(registry)
	workerMetrics := metrics.NewWorkerMetrics(registry)

	engine := charges.NewEngine(repo, authz, nil, transfers, chargeMetrics, logg, cfg.Vault.BatchMaxSize)
	cycle := worker.NewChargeCycle(repo, engine, nil, logg, cfg.Vault.BatchMaxSize)

	lock, err := worker.NewRedisLock(store, cfg.Worker.LockKey, cfg.Worker.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := worker.NewService(worker.ServiceParams{
		Logger:   logg,
		Cycle:    cycle,
		Lock:     lock,
		Metrics:  workerMetrics,
		Interval: cfg.Worker.CycleInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	go serveMetrics(ctx, cfg, logg, registry)

	logg.Info(logg.WithField(ctx, "interval", cfg.Worker.CycleInterval.String()), "starting charge worker")
	if err := service.Run(ctx); err != nil && err != context.Canceled {
		logg.Error(ctx, "charge worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, cfg *config.Config, logg *logger.Logger, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}
