// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Every setting is read from an ACADEMY_-prefixed environment variable with a
// default where one makes sense. Load validates the result and reports every
// problem at once.
//
// # Configuration Structure
//
// Server settings:
//
//	ACADEMY_HOST="0.0.0.0"
//	ACADEMY_PORT="8080"
//	ACADEMY_READ_TIMEOUT="15s"
//	ACADEMY_WRITE_TIMEOUT="15s"
//	ACADEMY_SHUTDOWN_TIMEOUT="30s"
//	ACADEMY_MAX_BODY_BYTES="1048576"
//
// Storage settings:
//
//	ACADEMY_POSTGRES_URL="postgres://localhost/academy"   # required
//	ACADEMY_POSTGRES_MAX_CONNS="20"
//	ACADEMY_REDIS_URL="redis://localhost:6379/0"          # enables the usage cache
//	ACADEMY_USAGE_CACHE_TTL="5m"
//	ACADEMY_S3_BUCKET="academy-invoices"                  # enables invoice archiving
//	ACADEMY_S3_REGION="us-east-1"
//	ACADEMY_S3_ENDPOINT="http://localhost:9000"
//
// Stripe and auth settings:
//
//	ACADEMY_STRIPE_SECRET_KEY="sk_live_..."               # required
//	ACADEMY_STRIPE_WEBHOOK_SECRET="whsec_..."             # required
//	ACADEMY_PLATFORM_FEE_PERCENT="10"
//	ACADEMY_JWT_SECRET="..."                              # required, 32+ characters
//	ACADEMY_SERVICE_TOKEN="..."                           # metering ingestion
//	ACADEMY_RATE_LIMIT_ENABLED="true"
//
// Billing settings:
//
//	ACADEMY_PRICING_FILE="/etc/academy/pricing.yaml"      # fallback pricing, hot reloaded
//	ACADEMY_PRICING_CACHE_TTL="1m"
//	ACADEMY_BILLING_SCHEDULE="0 3 1 * *"
//	ACADEMY_BILLING_AUTO_SEND="false"
//	ACADEMY_BILLING_CONCURRENCY="4"
//	ACADEMY_WEBHOOK_REPLAY_INTERVAL="30s"
//
// Observability settings:
//
//	ACADEMY_LOG_LEVEL="info"
//	ACADEMY_LOG_FORMAT="json"                             # json or text
//	ACADEMY_ENVIRONMENT="production"
//	ACADEMY_OTEL_ENDPOINT="otel-collector:4317"           # enables tracing
//	ACADEMY_SENTRY_DSN="https://...@sentry.io/..."
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := postgres.Open(ctx, cfg.Storage)
package config
