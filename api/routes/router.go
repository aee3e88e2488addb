package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bundleworks-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/bundleworks-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bundleworks-backend/api/middleware"
	"github.com/angelmondragon/bundleworks-backend/internal/bundles"
	shopifywebhook "github.com/angelmondragon/bundleworks-backend/internal/webhooks/shopify"
	"github.com/angelmondragon/bundleworks-backend/pkg/config"
	"github.com/angelmondragon/bundleworks-backend/pkg/db"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	bundleService bundles.Service,
	webhookService *shopifywebhook.Service,
	webhookGuard *shopifywebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// Signed webhook deliveries stay outside the admin-token group.
	r.Post("/webhooks/cart-update", webhookcontrollers.ShopifyCartUpdate(webhookService, cfg.Webhook, webhookGuard, logg))

	r.Route("/api/v1/bundles", func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.AdminAPI, logg))

		r.Get("/", controllers.ListBundles(bundleService, logg))
		r.Get("/{bundleId}", controllers.GetBundle(bundleService, logg))
		r.With(middleware.Idempotency(redisClient, logg)).Post("/actions", controllers.BundleActions(bundleService, logg))
	})

	return r
}
