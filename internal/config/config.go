// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// StoreDriver selects the account store: "postgres" or "memory" (local development only).
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN. Required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AutoMigrate runs pending migrations at server start.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`
	// RedisURL enables the Redis-backed limiter and reset nonce store (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA); literal "\n" sequences are expanded.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key matching JWTPrivateKey.
	JWTPublicKey  string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// ResetTokenTTLRaw is the password reset token lifetime (default 1h).
	ResetTokenTTLRaw string `mapstructure:"RESET_TOKEN_TTL"`
	// VerificationCodeTTLRaw is the email verification code lifetime (default 30m).
	VerificationCodeTTLRaw string `mapstructure:"VERIFICATION_CODE_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ResetRequestLimit caps reset and resend requests per user id within ResetRequestWindow.
	ResetRequestLimit     int    `mapstructure:"RESET_REQUEST_LIMIT"`
	ResetRequestWindowRaw string `mapstructure:"RESET_REQUEST_WINDOW"`

	// SMTP delivery. When SMTPHost is empty, emails are logged instead of sent.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPTLS      bool   `mapstructure:"SMTP_TLS"`
	// MailAbortOnDeliveryFailure removes a new registration whose verification email fails.
	MailAbortOnDeliveryFailure bool `mapstructure:"MAIL_ABORT_ON_DELIVERY_FAILURE"`
	// PasswordResetBaseURL prefixes the percent-encoded reset token in emailed links.
	PasswordResetBaseURL string `mapstructure:"PASSWORD_RESET_BASE_URL"`

	// UploadDir is where profile image renditions are written; UploadURLPrefix is how they are served.
	UploadDir       string `mapstructure:"UPLOAD_DIR"`
	UploadURLPrefix string `mapstructure:"UPLOAD_URL_PREFIX"`

	// Account events (optional). When Kafka brokers are set, lifecycle events are published to Kafka.
	// KafkaBrokers is a comma-separated list of broker addresses (e.g. "localhost:9092").
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	AccountEventsTopic string `mapstructure:"ACCOUNT_EVENTS_TOPIC"`

	// Worker-only: Loki URL for the events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OpenTelemetry. Empty endpoint disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Logging.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogDev   bool   `mapstructure:"LOG_DEV"`
	LogFile  string `mapstructure:"LOG_FILE"`

	// Advisory index monitor.
	IndexCheckIntervalRaw string `mapstructure:"INDEX_CHECK_INTERVAL"`
	IndexWarnThreshold    int    `mapstructure:"INDEX_WARN_THRESHOLD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "account-core")
	v.SetDefault("JWT_AUDIENCE", "account-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("VERIFICATION_CODE_TTL", "30m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RESET_REQUEST_LIMIT", 5)
	v.SetDefault("RESET_REQUEST_WINDOW", "1h")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_TLS", true)
	v.SetDefault("MAIL_ABORT_ON_DELIVERY_FAILURE", true)
	v.SetDefault("PASSWORD_RESET_BASE_URL", "http://localhost:3000/reset-password")
	v.SetDefault("UPLOAD_DIR", "public/uploads")
	v.SetDefault("UPLOAD_URL_PREFIX", "/uploads")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACCOUNT_EVENTS_TOPIC", "account-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "account-events-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "account-core")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEV", false)
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("INDEX_CHECK_INTERVAL", "1h")
	v.SetDefault("INDEX_WARN_THRESHOLD", 50)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case "memory":
		if c.Production() {
			return errors.New("config: STORE_DRIVER=memory must not be used when APP_ENV=production")
		}
	default:
		return errors.New("config: STORE_DRIVER must be postgres or memory")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.Production() && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("config: SMTP_FROM must be set when SMTP_HOST is set")
	}
	if c.ResetRequestLimit < 0 {
		return errors.New("config: RESET_REQUEST_LIMIT must not be negative")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool { return c.Env == "production" }

// Development reports whether APP_ENV is development.
func (c *Config) Development() bool { return c.Env == "development" }

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return parseDuration(c.JWTAccessTTL, 15*time.Minute) }

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return parseDuration(c.JWTRefreshTTL, 168*time.Hour) }

// ResetTokenTTL returns the reset token lifetime. Returns 1h if unset or invalid.
func (c *Config) ResetTokenTTL() time.Duration { return parseDuration(c.ResetTokenTTLRaw, time.Hour) }

// VerificationCodeTTL returns the verification code lifetime. Returns 30m if unset or invalid.
func (c *Config) VerificationCodeTTL() time.Duration {
	return parseDuration(c.VerificationCodeTTLRaw, 30*time.Minute)
}

// ResetRequestWindow returns the throttling window. Returns 1h if unset or invalid.
func (c *Config) ResetRequestWindow() time.Duration {
	return parseDuration(c.ResetRequestWindowRaw, time.Hour)
}

// IndexCheckInterval returns the index monitor period. Returns 1h if unset or invalid.
func (c *Config) IndexCheckInterval() time.Duration {
	return parseDuration(c.IndexCheckIntervalRaw, time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
