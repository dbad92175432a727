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
	FeatureFlags FeatureFlagsConfig
	Square       SquareConfig
	Payments     PaymentsConfig
	Booking      BookingConfig
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
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DRIVELOOP_APP_ENV" required:"true"`
	Port         string `envconfig:"DRIVELOOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DRIVELOOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DRIVELOOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DRIVELOOP_DB_DSN"`
	Driver string `envconfig:"DRIVELOOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DRIVELOOP_DB_HOST"`
	LegacyPort     int    `envconfig:"DRIVELOOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DRIVELOOP_DB_USER"`
	LegacyPassword string `envconfig:"DRIVELOOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"DRIVELOOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"DRIVELOOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DRIVELOOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DRIVELOOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DRIVELOOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DRIVELOOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DRIVELOOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DRIVELOOP_REDIS_ADDR"`
	Password     string        `envconfig:"DRIVELOOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"DRIVELOOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DRIVELOOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DRIVELOOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DRIVELOOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DRIVELOOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DRIVELOOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DRIVELOOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DRIVELOOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DRIVELOOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DRIVELOOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DRIVELOOP_AUTO_MIGRATE" default:"false"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"DRIVELOOP_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"DRIVELOOP_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"DRIVELOOP_SQUARE_ENV" default:"sandbox"`
	Currency    string `envconfig:"DRIVELOOP_SQUARE_CURRENCY" default:"PHP"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PaymentsConfig struct {
	CallTimeout   time.Duration `envconfig:"DRIVELOOP_PAYMENTS_CALL_TIMEOUT" default:"10s"`
	RetryBaseWait time.Duration `envconfig:"DRIVELOOP_PAYMENTS_RETRY_BASE_WAIT" default:"250ms"`
	MaxRetries    int           `envconfig:"DRIVELOOP_PAYMENTS_MAX_RETRIES" default:"4"`
}

type BookingConfig struct {
	PlatformFeePercent int           `envconfig:"DRIVELOOP_BOOKING_PLATFORM_FEE_PERCENT" default:"10"`
	StoreRetryAttempts int           `envconfig:"DRIVELOOP_BOOKING_STORE_RETRY_ATTEMPTS" default:"3"`
	StoreRetryWait     time.Duration `envconfig:"DRIVELOOP_BOOKING_STORE_RETRY_WAIT" default:"100ms"`
	CompletionGrace    time.Duration `envconfig:"DRIVELOOP_BOOKING_COMPLETION_GRACE" default:"1h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DRIVELOOP_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DRIVELOOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DRIVELOOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic             string `envconfig:"DRIVELOOP_PUBSUB_BOOKING_TOPIC" default:"dl-booking-events"`
	NotificationSubscription string `envconfig:"DRIVELOOP_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DRIVELOOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DRIVELOOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DRIVELOOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"DRIVELOOP_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"DRIVELOOP_CRON_INTERVAL" default:"15m"`
	LockTTL        time.Duration `envconfig:"DRIVELOOP_CRON_LOCK_TTL" default:"30m"`
	IdempotencyTTL time.Duration `envconfig:"DRIVELOOP_EVENT_IDEMPOTENCY_TTL" default:"720h"`
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
