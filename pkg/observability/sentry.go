package observability

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes the global Sentry hub and returns a flush function
func InitSentry(cfg SentryConfig, logger *Logger) (ShutdownFunc, error) {
	if cfg.DSN == "" {
		return func(context.Context) error { return nil }, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	logger.WithField("environment", cfg.Environment).Info("Sentry error reporting enabled")

	return func(ctx context.Context) error {
		timeout := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		sentry.Flush(timeout)
		return nil
	}, nil
}

// CaptureError reports err to Sentry, tagged with request metadata when r is non-nil
func CaptureError(ctx context.Context, r *http.Request, err error, extras map[string]interface{}) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("service", "academy")
		if requestID := GetRequestID(ctx); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		if r != nil {
			scope.SetTag("http.method", r.Method)
			scope.SetExtra("request_url", r.URL.String())
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		hub.CaptureException(err)
	})
}

// RecoverPanic recovers from a panic, logs it with the stack and reports it to Sentry.
// It must be called directly in a defer statement.
func RecoverPanic(logger *Logger, location string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("location", location).
			Error("PANIC recovered")
		CaptureError(context.Background(), nil, fmt.Errorf("panic recovered in %s: %v", location, r), map[string]interface{}{
			"panic_value": fmt.Sprint(r),
		})
	}
}
