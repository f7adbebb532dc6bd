package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/authgate/pkg/config"
	"github.com/utafrali/authgate/pkg/database"
)

// Mail drivers.
const (
	MailDriverLog   = "log"
	MailDriverKafka = "kafka"
	MailDriverHTTP  = "http"
)

const minSecretLength = 32

// Config holds all configuration for the auth service and the mailer.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CookieSecure       bool     `env:"COOKIE_SECURE" envDefault:"true"`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
	IPRateLimitRPS     float64  `env:"IP_RATE_LIMIT_RPS" envDefault:"10"`
	IPRateLimitBurst   int      `env:"IP_RATE_LIMIT_BURST" envDefault:"20"`

	// PostgreSQL
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"authgate"`
	PostgresPass       string        `env:"POSTGRES_PASSWORD" envDefault:"authgate_secret"`
	PostgresDB         string        `env:"POSTGRES_DB" envDefault:"authgate"`
	PostgresSSL        string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	CacheKeyPrefix string        `env:"CACHE_KEY_PREFIX" envDefault:"auth"`
	CacheOpTimeout time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"500ms"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"true"`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_EXPIRES_IN" envDefault:"1h"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"168h"`

	// Credentials and one-time codes
	BcryptCost          int           `env:"BCRYPT_COST" envDefault:"12"`
	VerificationCodeTTL time.Duration `env:"VERIFICATION_CODE_TTL" envDefault:"10m"`
	ResetTokenTTL       time.Duration `env:"RESET_TOKEN_TTL" envDefault:"10m"`
	ResetPasswordURL    string        `env:"RESET_PASSWORD_URL" envDefault:"http://localhost:3000/reset-password/"`
	LockMaxAttempts     int           `env:"LOCK_MAX_ATTEMPTS" envDefault:"5"`
	LockDuration        time.Duration `env:"LOCK_DURATION" envDefault:"15m"`

	// Per-identity rate limits
	RateLimitSignupMax    int           `env:"RATE_LIMIT_SIGNUP_MAX" envDefault:"3"`
	RateLimitSignupWindow time.Duration `env:"RATE_LIMIT_SIGNUP_WINDOW" envDefault:"1h"`
	RateLimitResendMax    int           `env:"RATE_LIMIT_RESEND_MAX" envDefault:"3"`
	RateLimitResendWindow time.Duration `env:"RATE_LIMIT_RESEND_WINDOW" envDefault:"1h"`
	RateLimitLoginMax     int           `env:"RATE_LIMIT_LOGIN_MAX" envDefault:"10"`
	RateLimitLoginWindow  time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"15m"`
	RateLimitForgotMax    int           `env:"RATE_LIMIT_FORGOT_MAX" envDefault:"3"`
	RateLimitForgotWindow time.Duration `env:"RATE_LIMIT_FORGOT_WINDOW" envDefault:"1h"`

	// Mail
	MailDriver         string        `env:"MAIL_DRIVER" envDefault:"log"`
	MailFrom           string        `env:"MAIL_FROM" envDefault:"no-reply@authgate.local"`
	MailAPIURL         string        `env:"MAIL_API_URL"`
	MailAPIKey         string        `env:"MAIL_API_KEY"`
	MailerGroupID      string        `env:"MAILER_GROUP_ID" envDefault:"authgate-mailer"`
	MailIdempotencyTTL time.Duration `env:"MAIL_IDEMPOTENCY_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// URL shortener
	ShortURLBase string `env:"SHORT_URL_BASE" envDefault:"http://localhost:8080/s/"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadMailer reads the configuration of cmd/mailer. Token secrets and the
// auth policies are not needed there and are not validated.
func LoadMailer() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load mailer config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load mailer config: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.MailerGroupID == "" {
		return nil, fmt.Errorf("MAILER_GROUP_ID must not be empty")
	}
	if cfg.MailIdempotencyTTL <= 0 {
		return nil, fmt.Errorf("MAIL_IDEMPOTENCY_TTL must be positive")
	}
	return cfg, nil
}

// Seed holds the bootstrap account created by cmd/seed.
type Seed struct {
	AdminName     string `env:"SEED_ADMIN_NAME" envDefault:"Super Admin"`
	AdminEmail    string `env:"SEED_ADMIN_EMAIL,required,notEmpty"`
	AdminPhone    string `env:"SEED_ADMIN_PHONE" envDefault:"00000000000"`
	AdminPassword string `env:"SEED_ADMIN_PASSWORD,required,notEmpty,unset"`
}

// LoadSeed reads the database settings and the bootstrap account for
// cmd/seed. Token secrets are not validated.
func LoadSeed() (*Config, *Seed, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, nil, fmt.Errorf("load seed config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load seed config: %w", err)
	}
	seed := &Seed{}
	if err := pkgconfig.Load(seed); err != nil {
		return nil, nil, fmt.Errorf("load seed config: %w", err)
	}
	return cfg, seed, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must both be set")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	// Short secrets are tolerated locally so a developer can run with "dev-access".
	if c.Environment != "development" {
		if len(c.JWTAccessSecret) < minSecretLength {
			return fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTAccessSecret))
		}
		if len(c.JWTRefreshSecret) < minSecretLength {
			return fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTRefreshSecret))
		}
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}

	if c.CacheKeyPrefix == "" {
		return fmt.Errorf("CACHE_KEY_PREFIX must not be empty")
	}
	if c.LockMaxAttempts < 1 || c.LockDuration <= 0 {
		return fmt.Errorf("invalid account lock policy: %d attempts / %s", c.LockMaxAttempts, c.LockDuration)
	}

	limits := []struct {
		name   string
		max    int
		window time.Duration
	}{
		{"SIGNUP", c.RateLimitSignupMax, c.RateLimitSignupWindow},
		{"RESEND", c.RateLimitResendMax, c.RateLimitResendWindow},
		{"LOGIN", c.RateLimitLoginMax, c.RateLimitLoginWindow},
		{"FORGOT", c.RateLimitForgotMax, c.RateLimitForgotWindow},
	}
	for _, l := range limits {
		if l.max < 1 || l.window < time.Second {
			return fmt.Errorf("RATE_LIMIT_%s needs max >= 1 and window >= 1s", l.name)
		}
	}

	switch c.MailDriver {
	case MailDriverLog, MailDriverKafka:
	case MailDriverHTTP:
		if c.MailAPIURL == "" {
			return fmt.Errorf("MAIL_API_URL is required when MAIL_DRIVER=http")
		}
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}

	return nil
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the redis client settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}
