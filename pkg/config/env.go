package config

const (
	EnvPrefix = "LOYALTY"

	EnvAppEnv = "LOYALTY_APP_ENV"
	EnvPort   = "LOYALTY_APP_PORT"

	EnvDBDSN      = "LOYALTY_DB_DSN"
	EnvDBHost     = "LOYALTY_DB_HOST"
	EnvDBUser     = "LOYALTY_DB_USER"
	EnvDBName     = "LOYALTY_DB_NAME"
	EnvDBPassword = "LOYALTY_DB_PASSWORD"

	EnvRedisURL = "LOYALTY_REDIS_URL"

	EnvJWTSecret = "LOYALTY_JWT_SECRET"
	EnvJWTIssuer = "LOYALTY_JWT_ISSUER"

	EnvConfigCacheTTL = "LOYALTY_CONFIG_CACHE_TTL"
	EnvRedemptionTTL  = "LOYALTY_REDEMPTION_TTL"
	EnvSignupBonus    = "LOYALTY_SIGNUP_BONUS_POINTS"

	EnvGCPProjectID  = "LOYALTY_GCP_PROJECT_ID"
	EnvPubSubTopic   = "LOYALTY_PUBSUB_TOPIC"
	EnvCronTick      = "LOYALTY_CRON_TICK"
	EnvAutoMigrate   = "LOYALTY_AUTO_MIGRATE"
	EnvOutboxBatch   = "LOYALTY_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPollMS  = "LOYALTY_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxTrys = "LOYALTY_OUTBOX_MAX_ATTEMPTS"

	EnvCORSAllowedOrigins  = "LOYALTY_CORS_ALLOWED_ORIGINS"
	EnvRateLimitWindow     = "LOYALTY_RATE_LIMIT_WINDOW"
	EnvRateLimitIP         = "LOYALTY_RATE_LIMIT_IP"
	EnvRateLimitRestaurant = "LOYALTY_RATE_LIMIT_RESTAURANT"
)

const (
	AppEnvDev        = "dev"
	AppEnvProd       = "prod"
	AppEnvProduction = "production"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
