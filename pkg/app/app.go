// Package app builds the dependency graph shared by the API server and the
// billing worker from a loaded config.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/billing"
	"github.com/platinummonkey/academy/pkg/config"
	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/courses"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/storage/postgres"
	"github.com/platinummonkey/academy/pkg/usage"
	"github.com/platinummonkey/academy/pkg/webhooks"
)

// App holds every long-lived collaborator
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	DB      *sql.DB
	Redis   *postgres.RedisClient // nil when no Redis URL is configured
	Objects *postgres.S3Client    // nil when no archive bucket is configured

	Orgs            *orgs.PostgresService
	Courses         *courses.PostgresStore
	PricingFallback *pricing.Fallback
	PricingStore    *pricing.PostgresStore
	Pricing         *pricing.CachedStore
	Usage           usage.Aggregator
	Recorder        *usage.PostgresRecorder
	Archiver        *billing.Archiver
	Invoices        *billing.InvoiceService
	Connect         *connect.Service
	Events          *webhooks.PostgresEventStore
	Receiver        *webhooks.Receiver
	Audit           *audit.PostgresStore
}

// New connects to the backing stores and constructs the services.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  observability.NewMetrics(registry),
	}

	db, err := postgres.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if cfg.Storage.CacheEnabled() {
		rc, err := postgres.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rc
	}

	if cfg.Storage.ArchiveEnabled() {
		objects, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Objects = objects
	}

	fallbackCfg := pricing.DefaultConfig()
	if cfg.Billing.PricingFile != "" {
		fileCfg, err := pricing.LoadFile(cfg.Billing.PricingFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load pricing file: %w", err)
		}
		fallbackCfg = fileCfg
	}
	a.PricingFallback = pricing.NewFallback(fallbackCfg)
	a.PricingStore = pricing.NewPostgresStore(db, a.PricingFallback)
	a.Pricing = pricing.NewCachedStore(a.PricingStore, cfg.Billing.PricingCacheTTL, a.Metrics)

	a.Orgs = orgs.NewPostgresService(db)
	a.Courses = courses.NewPostgresStore(db)
	a.Recorder = usage.NewPostgresRecorder(db)

	strict := usage.NewPostgresAggregator(db)
	var agg usage.Aggregator = strict
	if a.Redis != nil {
		agg = usage.NewCachedAggregator(agg, a.Redis, cfg.Storage.UsageCacheTTL, a.Metrics)
	}
	a.Usage = agg

	stripeAPI := client.New(cfg.Stripe.SecretKey, nil)

	a.Invoices = billing.NewInvoiceService(
		billing.NewPostgresStore(db),
		billing.NewStripeGateway(stripeAPI, a.Metrics),
		a.Orgs,
		a.Usage,
		a.Pricing,
		a.Metrics,
	).WithStrictUsage(strict)
	if a.Objects != nil {
		a.Archiver = billing.NewArchiver(a.Objects)
		a.Invoices.WithArchiver(a.Archiver)
	}

	a.Connect = connect.NewService(a.Orgs, a.Courses, connect.NewStripeGateway(stripeAPI, a.Metrics),
		cfg.Stripe.PlatformFeePercent, a.Metrics)

	a.Events = webhooks.NewPostgresEventStore(db)
	a.Receiver = webhooks.NewReceiver(webhooks.NewStripeVerifier(cfg.Stripe.WebhookSecret), a.Events, a.Metrics)
	webhooks.RegisterBilling(a.Receiver, a.Invoices)
	webhooks.RegisterConnect(a.Receiver, a.Connect)
	a.Audit = audit.NewPostgresStore(db)

	return a, nil
}

// Health returns a checker over the configured dependencies
func (a *App) Health(version string) *observability.HealthChecker {
	var rc *redis.Client
	if a.Redis != nil {
		rc = a.Redis.Client()
	}
	h := observability.NewHealthChecker(a.DB, rc, version)
	if a.Objects != nil {
		h.AddOptional("s3", a.Objects)
	}
	return h
}

// RegisterShutdown adds the app's drain and close steps to sm.
// Registered functions run concurrently, so archive uploads are drained
// before the connections they read from are closed.
func (a *App) RegisterShutdown(sm *observability.ShutdownManager) {
	sm.Register("storage", a.Drain)
}

// Drain waits for in-flight archive uploads and then closes connections
func (a *App) Drain(ctx context.Context) error {
	if a.Archiver != nil {
		if err := a.Archiver.Wait(ctx); err != nil {
			a.Logger.WithError(err).Warn("Invoice archive uploads did not finish")
		}
	}
	return a.Close()
}

// Close releases database and cache connections
func (a *App) Close() error {
	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close redis: %w", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	return firstErr
}
