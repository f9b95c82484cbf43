package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/loyalty-backend/internal/cron"
	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/redemptions"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/migrate"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/redis"
	"github.com/angelmondragon/loyalty-backend/pkg/retry"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	scope := envName(cfg.App.Env)
	locker, err := cron.NewRedisLocker(redisClient, func(job string) string {
		return redisClient.LockKey(scope + ":" + job)
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create job locker", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	readRetry := retry.Read(cfg.Loyalty.ReadRetryDelay)
	customerRepo := customers.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)

	customerSvc, err := customers.NewService(customers.ServiceParams{
		DB:        dbClient,
		Repo:      customerRepo,
		Ledger:    ledgerRepo,
		Outbox:    emitter,
		Logger:    logg,
		ReadRetry: readRetry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}
	redemptionSvc, err := redemptions.NewService(redemptions.ServiceParams{
		DB:             dbClient,
		Repo:           redemptions.NewRepository(conn),
		Rewards:        rewards.NewRepository(conn),
		Customers:      customerRepo,
		CustomerReader: customerSvc,
		Ledger:         ledgerRepo,
		Outbox:         emitter,
		Logger:         logg,
		Metrics:        metrics.NewLoyaltyMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewRedemptionExpiryJob(cron.RedemptionExpiryJobParams{
		Logger:  logg,
		Expirer: redemptionSvc,
		TTL:     cfg.Loyalty.RedemptionTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		DLQ:        outbox.NewDLQRepository(conn),
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	if err := multierr.Combine(
		registry.Register(expiryJob, cfg.Cron.ExpiryEvery),
		registry.Register(retentionJob, cfg.Cron.RetentionEvery),
	); err != nil {
		logg.Error(context.Background(), "failed to register loyalty jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"jobs": registry.Names(),
	})
	logg.Info(ctx, "starting loyalty job worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "loyalty job worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "loyalty job worker stopped")
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
