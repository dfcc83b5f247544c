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
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/academy/pkg/app"
	"github.com/platinummonkey/academy/pkg/billing"
	"github.com/platinummonkey/academy/pkg/config"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/usage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	runOnce     = flag.Bool("once", false, "Run the billing cycle once and exit")
	periodKey   = flag.String("period", "", "Billing period to close (YYYY-MM). If empty, closes the previous month. Only used with -once")
	schedule    = flag.String("schedule", "", "Cron schedule overriding ACADEMY_BILLING_SCHEDULE")
	metricsAddr = flag.String("metrics-addr", ":9091", "Address serving /metrics and /healthz; empty disables it")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "academy-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *schedule != "" {
		cfg.Billing.Schedule = *schedule
	}

	logger := observability.NewLoggerFromConfig(cfg.Observability.LogLevel, cfg.Observability.LogFormat).
		WithField("service", "academy-worker").
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

	cycle := billing.NewCycle(a.Orgs, a.Invoices, billing.CycleOptions{
		Concurrency: cfg.Billing.Concurrency,
		AutoSend:    cfg.Billing.AutoSend,
	}, a.Metrics)

	// Run once mode (for backfills and manual reruns)
	if *runOnce {
		period := usage.PreviousPeriod(time.Now())
		if *periodKey != "" {
			period, err = usage.ParsePeriod(*periodKey)
			if err != nil {
				a.Close()
				return err
			}
		}

		runErr := runCycle(ctx, cycle, period)
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Drain(drainCtx); err != nil {
			logger.WithError(err).Warn("Failed to release connections")
		}
		_ = shutdownOTel(drainCtx)
		_ = flushSentry(drainCtx)
		return runErr
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		health := a.Health(version)
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler(a.Registry))
		mux.HandleFunc("/healthz", health.Liveness)
		mux.HandleFunc("/readyz", health.Readiness)
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Billing.Schedule, func() {
		if err := runCycle(ctx, cycle, usage.PreviousPeriod(time.Now())); err != nil {
			logger.WithError(err).Error("Scheduled billing cycle failed")
		}
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to schedule billing cycle: %w", err)
	}

	c.Start()
	logger.WithField("schedule", cfg.Billing.Schedule).Info("Academy billing worker started")

	sm := observability.NewShutdownManager(logger, metricsServer, cfg.Server.ShutdownTimeout)
	// A running cycle finishes before its connections are closed
	sm.Register("billing", func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			logger.Warn("Billing cycle still running at shutdown")
		}
		return a.Drain(ctx)
	})
	sm.Register("opentelemetry", shutdownOTel)
	sm.Register("sentry", flushSentry)

	if err := sm.Wait(ctx); err != nil {
		return err
	}
	logger.Info("Academy billing worker stopped")
	return nil
}

func runCycle(ctx context.Context, cycle *billing.Cycle, period usage.Period) error {
	logger := observability.FromContext(ctx).WithField("period", period.Key())
	logger.Info("Starting billing cycle")

	report, err := cycle.Run(ctx, period)
	if err != nil {
		return fmt.Errorf("billing cycle for %s failed: %w", period.Key(), err)
	}

	logger.WithFields(map[string]interface{}{
		"generated":   report.Generated,
		"skipped":     report.Skipped,
		"sent":        report.Sent,
		"failed":      len(report.Failed),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Billing cycle completed")
	for _, f := range report.Failed {
		logger.WithField("org_id", f.OrgID).WithField("error", f.Error).Warn("Org was not invoiced")
	}
	return nil
}
