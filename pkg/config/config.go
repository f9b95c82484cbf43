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
	JWT          JWTConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Loyalty      LoyaltyConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type DBConfig struct {
	DSN    string `envconfig:"LOYALTY_DB_DSN"`
	Driver string `envconfig:"LOYALTY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOYALTY_DB_HOST"`
	LegacyPort     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOYALTY_DB_USER"`
	LegacyPassword string `envconfig:"LOYALTY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOYALTY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LOYALTY_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are issued by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"LOYALTY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LOYALTY_JWT_ISSUER" required:"true"`
}

// HTTPConfig covers the API edge: browser origins and write throttling.
type HTTPConfig struct {
	CORSAllowedOrigins  []string      `envconfig:"LOYALTY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow     time.Duration `envconfig:"LOYALTY_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIP         int           `envconfig:"LOYALTY_RATE_LIMIT_IP" default:"120"`
	RateLimitRestaurant int           `envconfig:"LOYALTY_RATE_LIMIT_RESTAURANT" default:"600"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOYALTY_AUTO_MIGRATE" default:"false"`
}

type LoyaltyConfig struct {
	ConfigCacheTTL    time.Duration `envconfig:"LOYALTY_CONFIG_CACHE_TTL" default:"5m"`
	RedemptionTTL     time.Duration `envconfig:"LOYALTY_REDEMPTION_TTL" default:"720h"`
	ReadRetryDelay    time.Duration `envconfig:"LOYALTY_READ_RETRY_DELAY" default:"100ms"`
	SignupBonusPoints int           `envconfig:"LOYALTY_SIGNUP_BONUS_POINTS" default:"0"`
}

type CronConfig struct {
	Tick            time.Duration `envconfig:"LOYALTY_CRON_TICK" default:"1m"`
	ExpiryEvery     time.Duration `envconfig:"LOYALTY_CRON_EXPIRY_EVERY" default:"15m"`
	RetentionEvery  time.Duration `envconfig:"LOYALTY_CRON_RETENTION_EVERY" default:"24h"`
	OutboxRetention time.Duration `envconfig:"LOYALTY_CRON_OUTBOX_RETENTION" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LOYALTY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LOYALTY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LOYALTY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LoyaltyTopic string `envconfig:"LOYALTY_PUBSUB_TOPIC" default:"loyalty-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOYALTY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOYALTY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOYALTY_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
