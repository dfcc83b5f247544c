package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/storage"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ACADEMY_"

// DefaultBillingSchedule runs the billing cycle at 03:00 on the 1st of each month
const DefaultBillingSchedule = "0 3 1 * *"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Stripe        StripeConfig
	Auth          AuthConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StripeConfig holds Stripe credentials and the Connect platform fee
type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	PlatformFeePercent int64
}

// AuthConfig holds the access token secret and the metering service token
type AuthConfig struct {
	JWTSecret    string
	ServiceToken string
	RateLimit    bool
}

// BillingConfig holds pricing and billing cycle settings
type BillingConfig struct {
	PricingFile        string
	PricingCacheTTL    time.Duration
	Schedule           string
	AutoSend           bool
	Concurrency        int
	WebhookReplayEvery time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	Environment string

	MetricsEnabled bool

	// OpenTelemetry is enabled when an endpoint is set
	OTelEndpoint    string
	OTelServiceName string
	OTelInsecure    bool
	OTelSampleRatio float64

	SentryDSN string
}

// OTel converts the settings into an observability.OTelConfig
func (o ObservabilityConfig) OTel(version string) observability.OTelConfig {
	return observability.OTelConfig{
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: version,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Sentry converts the settings into an observability.SentryConfig
func (o ObservabilityConfig) Sentry(release string) observability.SentryConfig {
	return observability.SentryConfig{
		DSN:         o.SentryDSN,
		Environment: o.Environment,
		Release:     release,
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Stripe:        loadStripeConfig(),
		Auth:          loadAuthConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	if maxConns := getEnvInt("POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("POSTGRES_TIMEOUT", cfg.PostgresTimeout)
	cfg.PostgresMaxLifetime = getEnvDuration("POSTGRES_MAX_LIFETIME", cfg.PostgresMaxLifetime)

	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	if redisMaxRetries := getEnvInt("REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.UsageCacheTTL = getEnvDuration("USAGE_CACHE_TTL", cfg.UsageCacheTTL)

	return cfg
}

func loadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:          getEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret:      getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PlatformFeePercent: getEnvInt64("PLATFORM_FEE_PERCENT", connect.PlatformFeePercent),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:    getEnv("JWT_SECRET", ""),
		ServiceToken: getEnv("SERVICE_TOKEN", ""),
		RateLimit:    getEnvBool("RATE_LIMIT_ENABLED", true),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PricingFile:        getEnv("PRICING_FILE", ""),
		PricingCacheTTL:    getEnvDuration("PRICING_CACHE_TTL", time.Minute),
		Schedule:           getEnv("BILLING_SCHEDULE", DefaultBillingSchedule),
		AutoSend:           getEnvBool("BILLING_AUTO_SEND", false),
		Concurrency:        getEnvInt("BILLING_CONCURRENCY", 4),
		WebhookReplayEvery: getEnvDuration("WEBHOOK_REPLAY_INTERVAL", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", ""),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "academy"),
		OTelInsecure:    getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, fmt.Errorf("server port is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive"))
	}

	if c.Storage.PostgresURL == "" {
		errs = append(errs, fmt.Errorf("%sPOSTGRES_URL is required", EnvPrefix))
	}
	if c.Storage.UsageCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("usage cache TTL must be positive"))
	}

	if c.Stripe.SecretKey == "" {
		errs = append(errs, fmt.Errorf("%sSTRIPE_SECRET_KEY is required", EnvPrefix))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("%sSTRIPE_WEBHOOK_SECRET is required", EnvPrefix))
	}
	if c.Stripe.PlatformFeePercent < 0 || c.Stripe.PlatformFeePercent > 100 {
		errs = append(errs, fmt.Errorf("platform fee percent must be between 0 and 100, got %d", c.Stripe.PlatformFeePercent))
	}

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("%sJWT_SECRET must be at least 32 characters", EnvPrefix))
	}

	if c.Billing.PricingCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("pricing cache TTL must be positive"))
	}
	if c.Billing.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("billing concurrency must be at least 1"))
	}
	if _, err := cron.ParseStandard(c.Billing.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid billing schedule %q: %w", c.Billing.Schedule, err))
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat))
	}
	if c.Observability.OTelEndpoint != "" && c.Observability.OTelServiceName == "" {
		errs = append(errs, fmt.Errorf("OpenTelemetry service name is required when an endpoint is set"))
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// getEnv returns the prefixed environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
