package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rechargecodes-backend/api/routes"
	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/internal/stats"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/metrics"
	"github.com/angelmondragon/rechargecodes-backend/pkg/migrate"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
	"github.com/angelmondragon/rechargecodes-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
		Console:     cfg.App.ConsoleLogs(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	loc, err := cfg.Reminders.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid reminders timezone", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rechargeMetrics := metrics.NewRechargeMetrics(registry)

	codesRepo := codes.NewRepository(dbClient.DB())
	purchasesRepo := purchases.NewRepository(dbClient.DB())
	plansRepo := plans.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	codesService, err := codes.NewService(codes.ServiceParams{
		Repo:          codesRepo,
		Plans:         plansRepo,
		Tx:            dbClient,
		Outbox:        outboxService,
		Logger:        logg,
		ExpiryHorizon: cfg.Codes.ExpiryHorizon(),
		MaxImportSize: cfg.Codes.MaxImportBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create codes service", err)
		os.Exit(1)
	}

	purchasesService, err := purchases.NewService(purchases.ServiceParams{
		Repo:   purchasesRepo,
		Plans:  plansRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchases service", err)
		os.Exit(1)
	}

	allocatorService, err := allocator.NewService(allocator.ServiceParams{
		Codes:            codesRepo,
		Purchases:        purchasesRepo,
		Plans:            plansRepo,
		Tx:               dbClient,
		Outbox:           outboxService,
		Metrics:          rechargeMetrics,
		Logger:           logg,
		MaxClaimAttempts: cfg.Codes.MaxClaimAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create allocator", err)
		os.Exit(1)
	}

	statsService, err := stats.NewService(stats.ServiceParams{
		Codes:     codesRepo,
		Purchases: purchasesRepo,
		Location:  loc,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stats service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:          dbClient,
			Redis:       redisClient,
			Idempotency: redisClient,
			Gatherer:    registry,
			Codes:       codesService,
			Allocator:   allocatorService,
			Purchases:   purchasesService,
			Stats:       statsService,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}
