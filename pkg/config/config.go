package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Shopify      ShopifyConfig
	Webhook      WebhookConfig
	AdminAPI     AdminAPIConfig
	Sync         SyncConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BUNDLEWORKS_APP_ENV" required:"true"`
	Port         string `envconfig:"BUNDLEWORKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BUNDLEWORKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BUNDLEWORKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BUNDLEWORKS_DB_DSN"`
	Driver string `envconfig:"BUNDLEWORKS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BUNDLEWORKS_DB_HOST"`
	LegacyPort     int    `envconfig:"BUNDLEWORKS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BUNDLEWORKS_DB_USER"`
	LegacyPassword string `envconfig:"BUNDLEWORKS_DB_PASSWORD"`
	LegacyName     string `envconfig:"BUNDLEWORKS_DB_NAME"`
	LegacySSLMode  string `envconfig:"BUNDLEWORKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BUNDLEWORKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BUNDLEWORKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BUNDLEWORKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BUNDLEWORKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BUNDLEWORKS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BUNDLEWORKS_REDIS_ADDR"`
	Password     string        `envconfig:"BUNDLEWORKS_REDIS_PASSWORD"`
	DB           int           `envconfig:"BUNDLEWORKS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BUNDLEWORKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BUNDLEWORKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BUNDLEWORKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BUNDLEWORKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BUNDLEWORKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ShopifyConfig carries the Admin API credentials for the merchant shop this
// deployment is installed on.
type ShopifyConfig struct {
	ShopDomain         string        `envconfig:"BUNDLEWORKS_SHOPIFY_SHOP_DOMAIN" required:"true"`
	AccessToken        string        `envconfig:"BUNDLEWORKS_SHOPIFY_ACCESS_TOKEN" required:"true"`
	APIVersion         string        `envconfig:"BUNDLEWORKS_SHOPIFY_API_VERSION" default:"2024-10"`
	AppURL             string        `envconfig:"BUNDLEWORKS_SHOPIFY_APP_URL"`
	MetafieldNamespace string        `envconfig:"BUNDLEWORKS_SHOPIFY_METAFIELD_NAMESPACE" default:"bundle_app"`
	MetafieldKey       string        `envconfig:"BUNDLEWORKS_SHOPIFY_METAFIELD_KEY" default:"rules"`
	HTTPTimeout        time.Duration `envconfig:"BUNDLEWORKS_SHOPIFY_HTTP_TIMEOUT" default:"15s"`
}

type WebhookConfig struct {
	SharedSecret string        `envconfig:"BUNDLEWORKS_WEBHOOK_SHARED_SECRET" required:"true"`
	DedupTTL     time.Duration `envconfig:"BUNDLEWORKS_WEBHOOK_DEDUP_TTL" default:"24h"`
}

// SyncConfig tunes the scheduled worker that repairs snapshot drift and
// audits long-lived coupons.
type SyncConfig struct {
	Interval     time.Duration `envconfig:"BUNDLEWORKS_SYNC_INTERVAL" default:"6h"`
	CouponMaxAge time.Duration `envconfig:"BUNDLEWORKS_SYNC_COUPON_MAX_AGE" default:"168h"`
}

type AdminAPIConfig struct {
	Token string `envconfig:"BUNDLEWORKS_ADMIN_API_TOKEN" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BUNDLEWORKS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BUNDLEWORKS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
