package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bundleworks-backend/internal/bundles"
	"github.com/angelmondragon/bundleworks-backend/internal/cron"
	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	"github.com/angelmondragon/bundleworks-backend/pkg/db"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/metrics"
	"github.com/angelmondragon/bundleworks-backend/pkg/migrate"
	"github.com/angelmondragon/bundleworks-backend/pkg/redis"
	"github.com/angelmondragon/bundleworks-backend/pkg/shopify"
)

const lockKeyFormat = "bw:sync-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	shopifyClient, err := shopify.NewClient(
		cfg.Shopify.ShopDomain,
		cfg.Shopify.AccessToken,
		cfg.Shopify.APIVersion,
		shopify.WithHTTPClient(&http.Client{Timeout: cfg.Shopify.HTTPTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build shopify client", err)
		os.Exit(1)
	}

	discountMetrics := metrics.NewDiscountMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	repo := bundles.NewRepository(dbClient.DB())
	syncer, err := bundles.NewSyncer(repo, shopifyClient, cfg.Shopify, logg, discountMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build snapshot syncer", err)
		os.Exit(1)
	}

	resyncJob, err := cron.NewMetafieldResyncJob(syncer)
	if err != nil {
		logg.Error(context.Background(), "failed to build resync job", err)
		os.Exit(1)
	}
	auditJob, err := cron.NewCouponAuditJob(repo, logg, cfg.Sync.CouponMaxAge)
	if err != nil {
		logg.Error(context.Background(), "failed to build coupon audit job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sync.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(resyncJob, auditJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
