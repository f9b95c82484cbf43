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

	"github.com/angelmondragon/loyalty-backend/api/routes"
	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/internal/menuitems"
	"github.com/angelmondragon/loyalty-backend/internal/points"
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

	conn := dbClient.DB()
	readRetry := retry.Read(cfg.Loyalty.ReadRetryDelay)
	loyaltyMetrics := metrics.NewLoyaltyMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	customerRepo := customers.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	rewardRepo := rewards.NewRepository(conn)

	configSvc, err := loyaltyconfig.NewService(loyaltyconfig.ServiceParams{
		Repo:      loyaltyconfig.NewRepository(conn),
		Cache:     loyaltyconfig.NewCache(redisClient, cfg.Loyalty.ConfigCacheTTL),
		Logger:    logg,
		ReadRetry: readRetry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty config service", err)
		os.Exit(1)
	}

	menuItemSvc, err := menuitems.NewService(menuitems.NewRepository(conn), logg, readRetry)
	if err != nil {
		logg.Error(context.Background(), "failed to create menu item service", err)
		os.Exit(1)
	}

	customerSvc, err := customers.NewService(customers.ServiceParams{
		DB:          dbClient,
		Repo:        customerRepo,
		Ledger:      ledgerRepo,
		Outbox:      emitter,
		Logger:      logg,
		ReadRetry:   readRetry,
		SignupBonus: cfg.Loyalty.SignupBonusPoints,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	pointsSvc, err := points.NewService(points.ServiceParams{
		DB:        dbClient,
		Config:    configSvc,
		MenuItems: menuItemSvc,
		Customers: customerRepo,
		Ledger:    ledgerRepo,
		Outbox:    emitter,
		Logger:    logg,
		ReadRetry: readRetry,
		Metrics:   loyaltyMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create points service", err)
		os.Exit(1)
	}

	rewardSvc, err := rewards.NewService(rewards.ServiceParams{
		Repo:      rewardRepo,
		Customers: customerSvc,
		Logger:    logg,
		ReadRetry: readRetry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reward service", err)
		os.Exit(1)
	}

	redemptionSvc, err := redemptions.NewService(redemptions.ServiceParams{
		DB:             dbClient,
		Repo:           redemptions.NewRepository(conn),
		Rewards:        rewardRepo,
		Customers:      customerRepo,
		CustomerReader: customerSvc,
		Ledger:         ledgerRepo,
		Outbox:         emitter,
		Logger:         logg,
		Metrics:        loyaltyMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			configSvc,
			pointsSvc,
			customerSvc,
			ledgerSvc,
			menuItemSvc,
			rewardSvc,
			redemptionSvc,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
