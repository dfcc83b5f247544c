// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry export, Sentry error reporting and health checks.
//
// # Structured Logging
//
// The logger wraps logrus and emits JSON by default:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("invoice generated")
//
// Request-scoped loggers are carried on the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("usage rpc failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.InvoiceTransitionsTotal.WithLabelValues("open", "paid", "stripe").Inc()
//
// # Shutdown
//
// ShutdownManager stops the HTTP server and then runs registered cleanup
// functions concurrently within a deadline.
package observability
