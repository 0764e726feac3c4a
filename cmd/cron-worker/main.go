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

	"github.com/angelmondragon/tixmarket-backend/internal/cron"
	"github.com/angelmondragon/tixmarket-backend/internal/escrow"
	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	"github.com/angelmondragon/tixmarket-backend/pkg/metrics"
	"github.com/angelmondragon/tixmarket-backend/pkg/migrate"
	"github.com/angelmondragon/tixmarket-backend/pkg/outbox"
	"github.com/angelmondragon/tixmarket-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"once":        *once,
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWithLog(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWithLog(ctx, logg, "redis", redisClient.Close)

	escrowService, err := escrow.NewFromConfig(ctx, cfg, logg, dbClient, metrics.NewEscrowMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("create escrow service: %w", err)
	}

	service, err := newScheduler(cfg, logg, dbClient, redisClient, escrowService)
	if err != nil {
		return err
	}

	metrics.Serve(ctx, metrics.NewServer(cfg.Service.MetricsAddr, prometheus.DefaultGatherer), logg)
	logg.Info(ctx, "starting cron worker")

	if !once {
		return service.Run(ctx)
	}
	ran, err := service.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cron cycle: %w", err)
	}
	if !ran {
		logg.Warn(ctx, "cron lock held elsewhere, cycle skipped")
	}
	return nil
}

// newScheduler registers the escrow sweep and outbox retention behind the
// shared redis lock.
func newScheduler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, escrowService escrow.Service) (*cron.Service, error) {
	releaseJob, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{
		Logger: logg,
		Escrow: escrowService,
	})
	if err != nil {
		return nil, fmt.Errorf("escrow release job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
		BatchSize:     cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	registry, err := cron.NewRegistry(releaseJob, retentionJob)
	if err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
}

func closeWithLog(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "error closing "+name, err)
	}
}
