package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	Credential    CredentialConfig
	TableToken    TableTokenConfig
	Fingerprint   FingerprintConfig
	Staff         StaffConfig
	JoinRateLimit JoinRateLimitConfig
	Sweeper       SweeperConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
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
	Env          string `envconfig:"TABLY_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TABLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TABLY_DB_DSN"`
	Driver string `envconfig:"TABLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLY_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLY_DB_USER"`
	LegacyPassword string `envconfig:"TABLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TABLY_REDIS_ADDR"`
	Password     string        `envconfig:"TABLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CredentialConfig drives the per-session JWT handed to joined devices.
type CredentialConfig struct {
	Secret            string `envconfig:"TABLY_CREDENTIAL_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLY_CREDENTIAL_ISSUER" default:"tably"`
	ExpirationMinutes int    `envconfig:"TABLY_CREDENTIAL_EXPIRATION_MINUTES" default:"240"`
}

// TTL returns the credential lifetime.
func (c CredentialConfig) TTL() time.Duration {
	if c.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// TableTokenConfig holds the key material for signed table tokens.
type TableTokenConfig struct {
	Secret string `envconfig:"TABLY_TABLE_TOKEN_SECRET" required:"true"`
}

// FingerprintConfig keys the device fingerprint hash so raw fingerprints
// never reach storage.
type FingerprintConfig struct {
	HashKey string `envconfig:"TABLY_FINGERPRINT_HASH_KEY" required:"true"`
}

// StaffConfig gates the staff-facing routes. Full staff auth lives in the
// back-office service; the core only checks a shared key.
type StaffConfig struct {
	APIKey string `envconfig:"TABLY_STAFF_API_KEY" required:"true"`
}

type JoinRateLimitConfig struct {
	Window  time.Duration `envconfig:"TABLY_JOIN_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit int           `envconfig:"TABLY_JOIN_RATE_LIMIT_IP_LIMIT" default:"30"`
}

type SweeperConfig struct {
	Interval           time.Duration `envconfig:"TABLY_SWEEPER_INTERVAL" default:"1m"`
	CartRetention      time.Duration `envconfig:"TABLY_SWEEPER_CART_RETENTION" default:"24h"`
	MetricsPort        string        `envconfig:"TABLY_SWEEPER_METRICS_PORT" default:"9102"`
	DefaultSessionTTL  time.Duration `envconfig:"TABLY_SESSION_DEFAULT_TTL" default:"3h"`
	LockTTL            time.Duration `envconfig:"TABLY_SWEEPER_LOCK_TTL" default:"5m"`
	ExpiryBatchSize    int           `envconfig:"TABLY_SWEEPER_EXPIRY_BATCH_SIZE" default:"200"`
	CartPurgeBatchSize int           `envconfig:"TABLY_SWEEPER_CART_PURGE_BATCH_SIZE" default:"500"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TABLY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TABLY_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TABLY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.LegacyHost == "" || db.LegacyUser == "" || db.LegacyName == "" {
		return fmt.Errorf("database DSN or host/user/name settings are required")
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.LegacyUser, db.LegacyPassword),
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   "/" + db.LegacyName,
	}
	query := dsn.Query()
	query.Set("sslmode", db.LegacySSLMode)
	dsn.RawQuery = query.Encode()
	db.DSN = dsn.String()
	return nil
}
