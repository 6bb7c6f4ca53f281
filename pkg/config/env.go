package config

const (
	EnvPrefix = "SHOPCORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SHOPCORE_APP_ENV"
	EnvPort     = "SHOPCORE_APP_PORT"
	EnvLogLevel = "SHOPCORE_LOG_LEVEL"

	EnvDBDSN  = "SHOPCORE_DB_DSN"
	EnvDBHost = "SHOPCORE_DB_HOST"
	EnvDBUser = "SHOPCORE_DB_USER"
	EnvDBName = "SHOPCORE_DB_NAME"

	EnvRedisURL = "SHOPCORE_REDIS_URL"

	EnvJWTSecret = "SHOPCORE_JWT_SECRET"
	EnvJWTIssuer = "SHOPCORE_JWT_ISSUER"

	EnvCheckoutShippingFee   = "SHOPCORE_CHECKOUT_SHIPPING_FEE"
	EnvCheckoutOrderExpiry   = "SHOPCORE_CHECKOUT_ORDER_EXPIRY"
	EnvCheckoutSweepInterval = "SHOPCORE_CHECKOUT_SWEEP_INTERVAL"

	EnvPaymentsProviderToken = "SHOPCORE_PAYMENTS_PROVIDER_TOKEN"
	EnvPaymentsWebhookAPIKey = "SHOPCORE_PAYMENTS_WEBHOOK_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
