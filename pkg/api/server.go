package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
)

// DefaultMaxBodyBytes bounds JSON request bodies
const DefaultMaxBodyBytes = 1 << 20

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Options wires the server's collaborators. Health, Registry, RateLimit,
// Audit and Public may be nil.
type Options struct {
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	Health        *observability.HealthChecker
	Authenticator *middleware.Authenticator
	RateLimit     *middleware.RateLimitMiddleware
	Audit         audit.Logger
	// Public routes skip authentication; Stripe webhooks live here
	Public []RouteRegistrar
	// Routes require a bearer token
	Routes       []RouteRegistrar
	MaxBodyBytes int64
	Tracing      bool
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLoggerFromConfig("info", "json")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(opts)

	var h http.Handler = s.router
	h = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware,
	)(h)
	if opts.Tracing {
		h = otelhttp.NewHandler(h, "academy",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	s.handler = h
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if opts.Health != nil {
		s.router.HandleFunc("/healthz", opts.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", opts.Health.Readiness).Methods("GET")
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods("GET")
	}

	for _, r := range opts.Public {
		r.RegisterRoutes(s.router)
	}

	authed := s.router.NewRoute().Subrouter()
	authed.Use(mux.MiddlewareFunc(httputil.MaxBytesMiddleware(opts.MaxBodyBytes)))
	if opts.Authenticator != nil {
		authed.Use(opts.Authenticator.Handler)
	}
	if opts.RateLimit != nil {
		authed.Use(opts.RateLimit.Handler)
	}
	if opts.Audit != nil {
		authed.Use(mux.MiddlewareFunc(audit.Middleware(opts.Audit)))
	}
	for _, r := range opts.Routes {
		r.RegisterRoutes(authed)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
