package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/academy/pkg/api"
	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/app"
	"github.com/platinummonkey/academy/pkg/config"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/storage/postgres"
	"github.com/platinummonkey/academy/pkg/webhooks"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	migrate     = flag.Bool("migrate", false, "Apply the database schema before serving")
	migrateOnly = flag.Bool("migrate-only", false, "Apply the database schema and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "academy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLoggerFromConfig(cfg.Observability.LogLevel, cfg.Observability.LogFormat).
		WithField("service", "academy").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	flushSentry, err := observability.InitSentry(cfg.Observability.Sentry(version), logger)
	if err != nil {
		return err
	}
	shutdownOTel, err := observability.InitOTel(ctx, cfg.Observability.OTel(version), logger)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if *migrate || *migrateOnly {
		if err := postgres.Migrate(ctx, a.DB); err != nil {
			a.Close()
			return err
		}
		logger.Info("Database schema applied")
		if *migrateOnly {
			return a.Close()
		}
	}

	if cfg.Billing.PricingFile != "" {
		if err := pricing.WatchFile(ctx, cfg.Billing.PricingFile, a.PricingFallback, logger, a.Pricing.Invalidate); err != nil {
			logger.WithError(err).Warn("Pricing file changes will not be picked up")
		}
	}

	var rateLimit *middleware.RateLimitMiddleware
	if cfg.Auth.RateLimit {
		if a.Redis != nil {
			rateLimit = middleware.NewDistributedRateLimitMiddleware(a.Redis.Client())
		} else {
			rateLimit = middleware.NewRateLimitMiddleware()
			rateLimit.StartCleanup(ctx)
		}
	}

	srv := api.NewServer(api.Options{
		Logger:        logger,
		Metrics:       a.Metrics,
		Registry:      a.Registry,
		Health:        a.Health(version),
		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.ServiceToken),
		RateLimit:     rateLimit,
		Audit:         a.Audit,
		Public:        []api.RouteRegistrar{webhooks.NewHandlers(a.Receiver)},
		Routes: []api.RouteRegistrar{
			api.NewOrgHandlers(a.Orgs),
			api.NewBillingHandlers(a.Invoices, a.Recorder, a.Orgs),
			api.NewPricingHandlers(a.Pricing),
			api.NewConnectHandlers(a.Connect, a.Orgs),
			audit.NewHandlers(a.Audit, a.Orgs),
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      cfg.Observability.OTel(version).Enabled(),
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	replayer := webhooks.NewReplayer(a.Receiver, a.Events)
	go replayer.Run(ctx, cfg.Billing.WebhookReplayEvery)

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	a.RegisterShutdown(sm)
	sm.Register("opentelemetry", shutdownOTel)
	sm.Register("sentry", flushSentry)

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Starting academy API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			a.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	if err := sm.Wait(ctx); err != nil {
		return err
	}
	logger.Info("Academy API server stopped")
	return nil
}
