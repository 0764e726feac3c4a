package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Internal     InternalConfig
	Escrow       EscrowConfig
	Stripe       StripeConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TIXMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"TIXMARKET_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TIXMARKET_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TIXMARKET_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TIXMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TIXMARKET_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"TIXMARKET_METRICS_ADDR"`
}

type DBConfig struct {
	DSN string `envconfig:"TIXMARKET_DB_DSN"`

	LegacyHost     string `envconfig:"TIXMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"TIXMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIXMARKET_DB_USER"`
	LegacyPassword string `envconfig:"TIXMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIXMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIXMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIXMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIXMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIXMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIXMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements that run longer; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"TIXMARKET_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIXMARKET_REDIS_URL"`
	Address      string        `envconfig:"TIXMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"TIXMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIXMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIXMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIXMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIXMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIXMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIXMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the auth provider's access tokens. Tokens are minted
// upstream; this service only verifies them.
type JWTConfig struct {
	Secret   string `envconfig:"TIXMARKET_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"TIXMARKET_JWT_ISSUER"`
	Audience string `envconfig:"TIXMARKET_JWT_AUDIENCE" default:"authenticated"`
}

type InternalConfig struct {
	ServiceKey string `envconfig:"TIXMARKET_INTERNAL_SERVICE_KEY" required:"true"`
	CronSecret string `envconfig:"TIXMARKET_CRON_SECRET"`
}

type EscrowConfig struct {
	FeeRate             decimal.Decimal `envconfig:"TIXMARKET_ESCROW_FEE_RATE" default:"0.05"`
	HoldingPeriod       time.Duration   `envconfig:"TIXMARKET_ESCROW_HOLDING_PERIOD" default:"24h"`
	Currency            string          `envconfig:"TIXMARKET_ESCROW_CURRENCY" default:"usd"`
	ProviderMaxRetries  uint64          `envconfig:"TIXMARKET_ESCROW_PROVIDER_MAX_RETRIES" default:"3"`
	ProviderRetryBase   time.Duration   `envconfig:"TIXMARKET_ESCROW_PROVIDER_RETRY_BASE" default:"200ms"`
	ProviderCallTimeout time.Duration   `envconfig:"TIXMARKET_ESCROW_PROVIDER_CALL_TIMEOUT" default:"20s"`
}

func (e EscrowConfig) validate() error {
	if e.FeeRate.IsNegative() || e.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1], got %s", EnvEscrowFeeRate, e.FeeRate)
	}
	if e.HoldingPeriod < 0 {
		return fmt.Errorf("%s must not be negative", EnvEscrowHoldingPeriod)
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"TIXMARKET_STRIPE_API_KEY"`
	Env    string `envconfig:"TIXMARKET_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TIXMARKET_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"TIXMARKET_CRON_LOCK_TTL" default:"55m"`
	// JobTimeout bounds a single job; keep it below LockTTL.
	JobTimeout time.Duration `envconfig:"TIXMARKET_CRON_JOB_TIMEOUT" default:"30m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TIXMARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TIXMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TIXMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EscrowTopic string `envconfig:"TIXMARKET_PUBSUB_ESCROW_TOPIC" default:"tix-escrow-events"`
	PayoutTopic string `envconfig:"TIXMARKET_PUBSUB_PAYOUT_TOPIC" default:"tix-payout-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TIXMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TIXMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TIXMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TIXMARKET_OUTBOX_RETENTION_DAYS" default:"30"`
	// RetentionBatch bounds how many rows one retention transaction deletes.
	RetentionBatch int `envconfig:"TIXMARKET_OUTBOX_RETENTION_BATCH" default:"500"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TIXMARKET_AUTO_MIGRATE" default:"false"`
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
