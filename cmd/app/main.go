// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"course-subscription/internal/config"
	"course-subscription/internal/domain/ports/adapter"
	"course-subscription/internal/domain/ports/repository"
	"course-subscription/internal/infra/adapters/gateway"
	"course-subscription/internal/infra/api"
	pg "course-subscription/internal/infra/db/postgres"
	"course-subscription/internal/infra/logging"
	"course-subscription/internal/infra/metrics"
	red "course-subscription/internal/infra/redis"
	"course-subscription/internal/infra/sched"
	"course-subscription/internal/infra/scheduler"
	"course-subscription/internal/infra/worker"
	"course-subscription/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// memoryGatewayURL selects the in-process gateway in dev mode.
const memoryGatewayURL = "memory://"

// backend is everything the use cases need from the Plan/Order Data Gateway.
type backend interface {
	adapter.PaymentGateway
	adapter.EntitlementGateway
	adapter.IdentityProvider
	adapter.ContentCatalog
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted links, memory gateway)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)
	orders := pg.NewPaymentOrderRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	entitlements := red.NewEntitlementCache(redisClient, cfg.Access.CacheTTL)
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Gateway ----
	var gw backend
	if cfg.Runtime.Dev && cfg.Gateway.BaseURL == memoryGatewayURL {
		gw = gateway.NewMemoryGateway(3)
		logger.Warn().Msg("using in-memory gateway")
	} else {
		hg, err := gateway.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		gw = hg
	}
	var plans repository.PlanCatalog = red.NewPlanCatalogCache(gw, redisClient, cfg.Access.PlanCacheTTL, logger)

	// ---- Workers ----
	tasks := worker.NewPool(cfg.Settlement.CancelWorkers, logger)
	tasks.Start(context.WithoutCancel(ctx))

	// ---- Use cases ----
	accessUC := usecase.NewAccessUseCase(gw, entitlements, usecase.AccessOptions{
		Freshness:             cfg.Access.Freshness,
		DefaultMaxFreeModules: cfg.Access.DefaultMaxFreeModules,
	}, logger)
	settlementUC := usecase.NewSettlementUseCase(ctx, gw, gw, orders, txm, plans, locker, accessUC, tasks,
		usecase.SettlementOptions{
			PollInterval: cfg.Settlement.PollInterval,
			PollCeiling:  cfg.Settlement.PollCeiling,
			Currency:     cfg.Settlement.Currency,
			Dev:          cfg.Runtime.Dev,
		}, logger)
	contentUC := usecase.NewContentUseCase(gw, accessUC, cfg.HTTP.PlansURL, logger)
	planUC := usecase.NewPlanUseCase(plans)

	// ---- Reconciler ----
	reconciler := sched.NewPaymentReconciler(settlementUC, orders, cfg.Settlement.StaleAfter, 200, logger)
	reconcileLoop := scheduler.NewScheduler(reconciler, cfg.Settlement.ReconcileInterval, 0, logger)
	reconcileLoop.Start(ctx)

	// ---- HTTP ----
	srv := api.NewServer(settlementUC, accessUC, contentUC, planUC, api.NewAuthenticator(cfg.Auth.JWTSecret), limiter,
		api.Options{
			Port:              cfg.HTTP.Port,
			RequestTimeout:    cfg.HTTP.RequestTimeout,
			CheckoutPerMinute: cfg.RateLimit.CheckoutPerMinute,
		}, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	// ---- Graceful shutdown ----
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	reconcileLoop.Stop()
	settlementUC.Shutdown()
	tasks.Stop()
	logger.Info().Msg("bye")
	return nil
}
