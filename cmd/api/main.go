package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bundleworks-backend/api/routes"
	"github.com/angelmondragon/bundleworks-backend/internal/bundles"
	shopifywebhook "github.com/angelmondragon/bundleworks-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	"github.com/angelmondragon/bundleworks-backend/pkg/db"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/metrics"
	"github.com/angelmondragon/bundleworks-backend/pkg/migrate"
	"github.com/angelmondragon/bundleworks-backend/pkg/redis"
	"github.com/angelmondragon/bundleworks-backend/pkg/shopify"
)

const shutdownTimeout = 10 * time.Second

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

	registry := prometheus.NewRegistry()
	discountMetrics := metrics.NewDiscountMetrics(registry)

	repo := bundles.NewRepository(dbClient.DB())
	syncer, err := bundles.NewSyncer(repo, shopifyClient, cfg.Shopify, logg, discountMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build snapshot syncer", err)
		os.Exit(1)
	}

	bundleService, err := bundles.NewService(repo, shopifyClient, syncer, logg, discountMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build bundle service", err)
		os.Exit(1)
	}

	webhookService, err := shopifywebhook.NewService(repo, logg, discountMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := shopifywebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.DedupTTL, "cart-update")
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook guard", err)
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
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			bundleService,
			webhookService,
			webhookGuard,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
