package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the minimum environment for Load to succeed
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ACADEMY_POSTGRES_URL", "postgres://localhost/academy?sslmode=disable")
	t.Setenv("ACADEMY_STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("ACADEMY_STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("ACADEMY_JWT_SECRET", strings.Repeat("s", 32))
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"returns env value when set", "TEST_VAR", "default", "custom", "custom"},
		{"returns default when env not set", "TEST_VAR_NOT_SET", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(EnvPrefix+tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{"true", false, "true", true},
		{"one", false, "1", true},
		{"upper case", false, "TRUE", true},
		{"false", true, "false", false},
		{"anything else is false", true, "yes", false},
		{"default when unset", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("ACADEMY_TEST_BOOL", tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("ACADEMY_TEST_INT", "42")
	t.Setenv("ACADEMY_TEST_BAD_INT", "forty-two")
	t.Setenv("ACADEMY_TEST_FLOAT", "0.25")
	t.Setenv("ACADEMY_TEST_DURATION", "90s")
	t.Setenv("ACADEMY_TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 1))
	assert.Equal(t, int64(7), getEnvInt64("TEST_UNSET", 7))
	assert.InDelta(t, 0.25, getEnvFloat("TEST_FLOAT", 1), 1e-9)
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_DURATION", time.Second))
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)

	assert.Equal(t, 20, cfg.Storage.PostgresMaxConns)
	assert.False(t, cfg.Storage.CacheEnabled())
	assert.False(t, cfg.Storage.ArchiveEnabled())
	assert.Equal(t, 5*time.Minute, cfg.Storage.UsageCacheTTL)

	assert.Equal(t, int64(10), cfg.Stripe.PlatformFeePercent)
	assert.True(t, cfg.Auth.RateLimit)

	assert.Equal(t, DefaultBillingSchedule, cfg.Billing.Schedule)
	assert.False(t, cfg.Billing.AutoSend)
	assert.Equal(t, 4, cfg.Billing.Concurrency)
	assert.Equal(t, time.Minute, cfg.Billing.PricingCacheTTL)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.False(t, cfg.Observability.OTel("dev").Enabled())
	assert.Empty(t, cfg.Observability.Sentry("dev").DSN)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACADEMY_PORT", "9000")
	t.Setenv("ACADEMY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ACADEMY_USAGE_CACHE_TTL", "1m")
	t.Setenv("ACADEMY_S3_BUCKET", "academy-invoices")
	t.Setenv("ACADEMY_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("ACADEMY_S3_USE_PATH_STYLE", "true")
	t.Setenv("ACADEMY_PLATFORM_FEE_PERCENT", "12")
	t.Setenv("ACADEMY_PRICING_FILE", "/etc/academy/pricing.yaml")
	t.Setenv("ACADEMY_BILLING_SCHEDULE", "@daily")
	t.Setenv("ACADEMY_BILLING_AUTO_SEND", "1")
	t.Setenv("ACADEMY_OTEL_ENDPOINT", "otel-collector:4317")
	t.Setenv("ACADEMY_SENTRY_DSN", "https://key@sentry.test/1")
	t.Setenv("ACADEMY_ENVIRONMENT", "production")
	t.Setenv("ACADEMY_LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.True(t, cfg.Storage.CacheEnabled())
	assert.Equal(t, time.Minute, cfg.Storage.UsageCacheTTL)
	assert.True(t, cfg.Storage.ArchiveEnabled())
	assert.True(t, cfg.Storage.S3UsePathStyle)
	assert.Equal(t, int64(12), cfg.Stripe.PlatformFeePercent)
	assert.Equal(t, "/etc/academy/pricing.yaml", cfg.Billing.PricingFile)
	assert.Equal(t, "@daily", cfg.Billing.Schedule)
	assert.True(t, cfg.Billing.AutoSend)

	otel := cfg.Observability.OTel("1.2.3")
	assert.True(t, otel.Enabled())
	assert.Equal(t, "academy", otel.ServiceName)
	assert.Equal(t, "1.2.3", otel.ServiceVersion)

	sentry := cfg.Observability.Sentry("1.2.3")
	assert.Equal(t, "production", sentry.Environment)
	assert.Equal(t, "1.2.3", sentry.Release)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("ACADEMY_JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		"ACADEMY_POSTGRES_URL",
		"ACADEMY_STRIPE_SECRET_KEY",
		"ACADEMY_STRIPE_WEBHOOK_SECRET",
		"ACADEMY_JWT_SECRET",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate(t *testing.T) {
	setRequired(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"fee above 100", func(c *Config) { c.Stripe.PlatformFeePercent = 101 }, "platform fee percent"},
		{"negative fee", func(c *Config) { c.Stripe.PlatformFeePercent = -1 }, "platform fee percent"},
		{"bad schedule", func(c *Config) { c.Billing.Schedule = "every tuesday" }, "invalid billing schedule"},
		{"zero concurrency", func(c *Config) { c.Billing.Concurrency = 0 }, "billing concurrency"},
		{"zero pricing ttl", func(c *Config) { c.Billing.PricingCacheTTL = 0 }, "pricing cache TTL"},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format"},
		{"otel without name", func(c *Config) {
			c.Observability.OTelEndpoint = "collector:4317"
			c.Observability.OTelServiceName = ""
		}, "service name"},
		{"sample ratio", func(c *Config) { c.Observability.OTelSampleRatio = 2 }, "sample ratio"},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
