package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	"github.com/angelmondragon/rechargecodes-backend/internal/cron"
	"github.com/angelmondragon/rechargecodes-backend/internal/plans"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/internal/reminders"
	"github.com/angelmondragon/rechargecodes-backend/pkg/config"
	"github.com/angelmondragon/rechargecodes-backend/pkg/db"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/metrics"
	"github.com/angelmondragon/rechargecodes-backend/pkg/migrate"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
	"github.com/angelmondragon/rechargecodes-backend/pkg/redis"
	"github.com/angelmondragon/rechargecodes-backend/pkg/whatsapp"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	lock, closeLock, err := buildLock(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	defer closeLock()

	loc, err := cfg.Reminders.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid reminders timezone", err)
		os.Exit(1)
	}

	rechargeMetrics := metrics.NewRechargeMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	codesRepo := codes.NewRepository(dbClient.DB())
	plansRepo := plans.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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
		Repo:   purchases.NewRepository(dbClient.DB()),
		Plans:  plansRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchases service", err)
		os.Exit(1)
	}

	scheduler, err := reminders.NewScheduler(reminders.SchedulerParams{
		Purchases:   purchasesService,
		Plans:       plansRepo,
		Transport:   buildTransport(cfg.WhatsApp, logg),
		Metrics:     rechargeMetrics,
		Logger:      logg,
		Location:    loc,
		SendTimeout: cfg.Reminders.SendTimeout,
		Concurrency: cfg.Reminders.Concurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder scheduler", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewCodeExpiryJob(cron.CodeExpiryJobParams{
		Logger: logg,
		Codes:  codesService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create code expiry job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	// expiry runs first so reminders never mention codes that just lapsed
	registry := cron.NewRegistry(expiryJob, scheduler, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLock prefers the redis lock so only one worker sweeps across instances.
// Without redis the in-process mutex still refuses overlapping cycles.
func buildLock(cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if !redis.Configured(cfg.Redis) {
		logg.Warn(context.Background(), "redis not configured; using in-process cron lock")
		return cron.NewMutexLock(), func() {}, nil
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return lock, closeFn, nil
}

func buildTransport(cfg config.WhatsAppConfig, logg *logger.Logger) reminders.Transport {
	if !cfg.Configured() {
		logg.Warn(context.Background(), "whatsapp transport not configured; reminder sweeps will be idle")
		return nil
	}
	client, err := whatsapp.NewClient(cfg.Token, cfg.SenderID, whatsapp.WithBaseURL(cfg.BaseURL))
	if err != nil {
		logg.Error(context.Background(), "failed to create whatsapp client", err)
		return nil
	}
	return reminders.NewWhatsAppTransport(client)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
