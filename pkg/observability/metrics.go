package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	InvoicesGeneratedTotal   *prometheus.CounterVec
	InvoiceTransitionsTotal  *prometheus.CounterVec
	InvoiceAmountCents       prometheus.Histogram
	BillingCycleDuration     prometheus.Histogram
	UsageRPCFailuresTotal    prometheus.Counter
	UsageCacheResultsTotal   *prometheus.CounterVec
	PricingCacheResultsTotal *prometheus.CounterVec

	// Stripe metrics
	WebhookEventsTotal    *prometheus.CounterVec
	StripeRequestsTotal   *prometheus.CounterVec
	CheckoutSessionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "academy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		InvoicesGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_invoices_generated_total",
				Help: "Invoices generated, by outcome",
			},
			[]string{"outcome"},
		),
		InvoiceTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_invoice_transitions_total",
				Help: "Invoice status transitions applied",
			},
			[]string{"from", "to", "source"},
		),
		InvoiceAmountCents: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "academy_invoice_amount_cents",
				Help:    "Total of generated invoices in minor currency units",
				Buckets: prometheus.ExponentialBuckets(100, 4, 10),
			},
		),
		BillingCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "academy_billing_cycle_duration_seconds",
				Help:    "Duration of a full billing period close",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		UsageRPCFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "academy_usage_rpc_failures_total",
				Help: "get_org_usage calls that failed",
			},
		),
		UsageCacheResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_usage_cache_results_total",
				Help: "Usage snapshot cache lookups, by result",
			},
			[]string{"result"},
		),
		PricingCacheResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_pricing_cache_results_total",
				Help: "Active pricing config cache lookups, by result",
			},
			[]string{"result"},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_webhook_events_total",
				Help: "Stripe webhook events received, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		StripeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_stripe_requests_total",
				Help: "Outbound Stripe API calls, by operation and status",
			},
			[]string{"operation", "status"},
		),
		CheckoutSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "academy_checkout_sessions_total",
				Help: "Course checkout sessions created, by charge type",
			},
			[]string{"charge"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InvoicesGeneratedTotal,
		m.InvoiceTransitionsTotal,
		m.InvoiceAmountCents,
		m.BillingCycleDuration,
		m.UsageRPCFailuresTotal,
		m.UsageCacheResultsTotal,
		m.PricingCacheResultsTotal,
		m.WebhookEventsTotal,
		m.StripeRequestsTotal,
		m.CheckoutSessionsTotal,
	)

	return m
}

// NewNopMetrics returns metrics registered against a throwaway registry, for tests and tools
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveStripe records the outcome of a Stripe API call
func (m *Metrics) ObserveStripe(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StripeRequestsTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It must be installed with Router.Use so the matched route template is known.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
