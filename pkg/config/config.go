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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPCORE_DB_DSN"`
	Driver string `envconfig:"SHOPCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPCORE_DB_USER"`
	LegacyPassword string `envconfig:"SHOPCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds row-lock waits inside stock transactions. Zero keeps the server default.
	LockTimeout time.Duration `envconfig:"SHOPCORE_DB_LOCK_TIMEOUT" default:"0s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPCORE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPCORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPCORE_AUTO_MIGRATE" default:"false"`
	// EmbeddedSweeper runs the cron jobs inside the API process instead of a dedicated cron-worker.
	EmbeddedSweeper bool `envconfig:"SHOPCORE_EMBEDDED_SWEEPER" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"SHOPCORE_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// CheckoutConfig carries the order pricing and expiry knobs. Amounts are in currency minor units.
type CheckoutConfig struct {
	ShippingFee           int64         `envconfig:"SHOPCORE_CHECKOUT_SHIPPING_FEE" default:"30000"`
	FreeShippingThreshold int64         `envconfig:"SHOPCORE_CHECKOUT_FREE_SHIPPING_THRESHOLD" default:"0"`
	OrderExpiry           time.Duration `envconfig:"SHOPCORE_CHECKOUT_ORDER_EXPIRY" default:"15m"`
	SweepInterval         time.Duration `envconfig:"SHOPCORE_CHECKOUT_SWEEP_INTERVAL" default:"5m"`
}

func (c CheckoutConfig) validate() error {
	if c.ShippingFee < 0 {
		return fmt.Errorf("%s must not be negative", EnvCheckoutShippingFee)
	}
	if c.OrderExpiry <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutOrderExpiry)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutSweepInterval)
	}
	return nil
}

type PaymentsConfig struct {
	ProviderBaseURL string        `envconfig:"SHOPCORE_PAYMENTS_PROVIDER_BASE_URL" default:"https://my.sepay.vn/userapi"`
	ProviderToken   string        `envconfig:"SHOPCORE_PAYMENTS_PROVIDER_TOKEN"`
	AccountNumber   string        `envconfig:"SHOPCORE_PAYMENTS_ACCOUNT_NUMBER"`
	WebhookAPIKey   string        `envconfig:"SHOPCORE_PAYMENTS_WEBHOOK_API_KEY"`
	PollInterval    time.Duration `envconfig:"SHOPCORE_PAYMENTS_POLL_INTERVAL" default:"1m"`
	PollLookback    time.Duration `envconfig:"SHOPCORE_PAYMENTS_POLL_LOOKBACK" default:"30m"`
	RequestTimeout  time.Duration `envconfig:"SHOPCORE_PAYMENTS_REQUEST_TIMEOUT" default:"10s"`
}

// PollingEnabled reports whether the provider transaction feed is configured.
func (p PaymentsConfig) PollingEnabled() bool {
	return strings.TrimSpace(p.ProviderToken) != "" && strings.TrimSpace(p.ProviderBaseURL) != ""
}

// HTTPConfig tunes the public API surface.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"SHOPCORE_HTTP_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CheckoutRateLimit  int64         `envconfig:"SHOPCORE_HTTP_CHECKOUT_RATE_LIMIT" default:"10"`
	CheckoutRateWindow time.Duration `envconfig:"SHOPCORE_HTTP_CHECKOUT_RATE_WINDOW" default:"1m"`
	IdempotencyTTL     time.Duration `envconfig:"SHOPCORE_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	ShutdownTimeout    time.Duration `envconfig:"SHOPCORE_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SHOPCORE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"SHOPCORE_PUBSUB_NOTIFICATION_TOPIC" default:"shopcore-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
