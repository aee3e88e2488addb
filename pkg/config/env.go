package config

// EnvPrefix scopes every environment variable read by envconfig.
const EnvPrefix = "BUNDLEWORKS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced directly (tests, error messages).
const (
	EnvAppEnv        = "BUNDLEWORKS_APP_ENV"
	EnvPort          = "BUNDLEWORKS_APP_PORT"
	EnvDBDSN         = "BUNDLEWORKS_DB_DSN"
	EnvDBHost        = "BUNDLEWORKS_DB_HOST"
	EnvDBUser        = "BUNDLEWORKS_DB_USER"
	EnvDBName        = "BUNDLEWORKS_DB_NAME"
	EnvRedisURL      = "BUNDLEWORKS_REDIS_URL"
	EnvShopDomain    = "BUNDLEWORKS_SHOPIFY_SHOP_DOMAIN"
	EnvAccessToken   = "BUNDLEWORKS_SHOPIFY_ACCESS_TOKEN"
	EnvWebhookSecret = "BUNDLEWORKS_WEBHOOK_SHARED_SECRET"
	EnvAdminToken    = "BUNDLEWORKS_ADMIN_API_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
