package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Backoffice   BackofficeConfig
	Checkout     CheckoutConfig
	Loyalty      LoyaltyConfig
	Terminal     TerminalConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Loyalty.Tiers(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"PACKFINDERZ_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PACKFINDERZ_DB_HOST"`
	Port     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	User     string `envconfig:"PACKFINDERZ_DB_USER"`
	Password string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	Name     string `envconfig:"PACKFINDERZ_DB_NAME"`
	SSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

// BackofficeConfig points at the HTTP API that owns catalog, sales, parked
// sales and loyalty balances.
type BackofficeConfig struct {
	BaseURL string        `envconfig:"PACKFINDERZ_BACKOFFICE_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"PACKFINDERZ_BACKOFFICE_API_KEY"`
	Timeout time.Duration `envconfig:"PACKFINDERZ_BACKOFFICE_TIMEOUT" default:"10s"`

	BreakerMaxRequests      uint32        `envconfig:"PACKFINDERZ_BACKOFFICE_BREAKER_MAX_REQUESTS" default:"1"`
	BreakerInterval         time.Duration `envconfig:"PACKFINDERZ_BACKOFFICE_BREAKER_INTERVAL" default:"60s"`
	BreakerOpenTimeout      time.Duration `envconfig:"PACKFINDERZ_BACKOFFICE_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerFailureThreshold uint32        `envconfig:"PACKFINDERZ_BACKOFFICE_BREAKER_FAILURES" default:"5"`
}

type CheckoutConfig struct {
	SubmitTimeout    time.Duration `envconfig:"PACKFINDERZ_CHECKOUT_SUBMIT_TIMEOUT" default:"15s"`
	PrintMode        string        `envconfig:"PACKFINDERZ_CHECKOUT_PRINT_MODE" default:"standard"`
	ReceiptTransport string        `envconfig:"PACKFINDERZ_CHECKOUT_RECEIPT_TRANSPORT" default:"http"`
	ReceiptQueueSize int           `envconfig:"PACKFINDERZ_CHECKOUT_RECEIPT_QUEUE_SIZE" default:"64"`
}

type LoyaltyConfig struct {
	// PointsPerUnit is how many points buy one unit of currency.
	PointsPerUnit int64 `envconfig:"PACKFINDERZ_LOYALTY_POINTS_PER_UNIT" default:"100"`
	// RewardTiers is a comma separated list of points:value pairs.
	RewardTiers string `envconfig:"PACKFINDERZ_LOYALTY_REWARD_TIERS" default:"500:5.00,1000:10.00,2500:30.00"`
	DebitMode   string `envconfig:"PACKFINDERZ_LOYALTY_DEBIT_MODE" default:"deferred"`
}

// RewardTier is a predefined redemption.
type RewardTier struct {
	PointsRequired int64
	Value          decimal.Decimal
}

// Tiers parses RewardTiers.
func (l LoyaltyConfig) Tiers() ([]RewardTier, error) {
	raw := strings.TrimSpace(l.RewardTiers)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	tiers := make([]RewardTier, 0, len(parts))
	for _, part := range parts {
		pointsRaw, valueRaw, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("%s: malformed tier %q", EnvLoyaltyRewardTiers, part)
		}
		points, err := strconv.ParseInt(strings.TrimSpace(pointsRaw), 10, 64)
		if err != nil || points <= 0 {
			return nil, fmt.Errorf("%s: invalid points in %q", EnvLoyaltyRewardTiers, part)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(valueRaw))
		if err != nil || !value.IsPositive() {
			return nil, fmt.Errorf("%s: invalid value in %q", EnvLoyaltyRewardTiers, part)
		}
		tiers = append(tiers, RewardTier{PointsRequired: points, Value: value})
	}
	return tiers, nil
}

type TerminalConfig struct {
	SnapshotTTL time.Duration `envconfig:"PACKFINDERZ_TERMINAL_SNAPSHOT_TTL" default:"12h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	ReceiptTopic string `envconfig:"PACKFINDERZ_PUBSUB_RECEIPT_TOPIC" default:"pos-receipt-print-jobs"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the retention sweeps run by the cron worker.
type CronConfig struct {
	Interval             time.Duration `envconfig:"PACKFINDERZ_CRON_INTERVAL" default:"24h"`
	OutboxRetentionDays  int           `envconfig:"PACKFINDERZ_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	AttemptRetentionDays int           `envconfig:"PACKFINDERZ_CRON_ATTEMPT_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		if db.DSN == "" {
			db.DSN = "file:pos.db?cache=shared"
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range []string{EnvDBHost, EnvDBUser, EnvDBName} {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
