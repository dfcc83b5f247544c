package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/webhooks"
)

const (
	testJWTSecret    = "super-secret-jwt-token-with-at-least-32-characters"
	testServiceToken = "svc_metering_token"
)

func signToken(t *testing.T, claims middleware.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, subject string) string {
	return signToken(t, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "owner@acme.test",
	})
}

func newTestServer(t *testing.T) (*Server, *observability.Metrics) {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	receiver := webhooks.NewReceiver(webhooks.NewStripeVerifier("whsec_test"), nil, metrics)

	srv := NewServer(Options{
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics:       metrics,
		Registry:      registry,
		Health:        observability.NewHealthChecker(nil, nil, "test"),
		Authenticator: middleware.NewAuthenticator(testJWTSecret, testServiceToken),
		Public:        []RouteRegistrar{webhooks.NewHandlers(receiver)},
		Routes:        []RouteRegistrar{NewOrgHandlers(newOrgs(t))},
		MaxBodyBytes:  256,
	})
	return srv, metrics
}

func serve(srv http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(srv, "GET", "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "academy_http_requests_total")
}

func TestServer_RequiresAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "GET", "/orgs/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, "GET", "/orgs/1", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, "GET", "/orgs/1", userToken(t, ownerID.String()), "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The service token has no org membership
	w = serve(srv, "GET", "/orgs/1", testServiceToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_WebhooksSkipAuthentication(t *testing.T) {
	srv, metrics := newTestServer(t)

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set(webhooks.SignatureHeader, "t=1,v1=bad")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid signature")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/stripe", "400")))
}

func TestServer_BodyLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"name":"` + strings.Repeat("x", 512) + `"}`
	w := serve(srv, "POST", "/orgs", userToken(t, outsideID.String()), body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_NotFoundIsJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "GET", "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())

	w = serve(srv, "DELETE", "/healthz", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_PropagatesRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, "trace-me", w.Header().Get("X-Request-ID"))
}

type auditRecorder struct {
	events []*audit.AuditEvent
}

func (a *auditRecorder) Log(ctx context.Context, event *audit.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func TestServer_AuditsManualActions(t *testing.T) {
	recorder := &auditRecorder{}
	srv := NewServer(Options{
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
		Authenticator: middleware.NewAuthenticator(testJWTSecret, testServiceToken),
		Audit:         recorder,
		Routes:        []RouteRegistrar{NewOrgHandlers(newOrgs(t))},
	})

	req := httptest.NewRequest("POST", "/orgs", strings.NewReader(`{"name":"Audited Academy"}`))
	req.Header.Set("Authorization", "Bearer "+userToken(t, outsideID.String()))
	req.Header.Set("X-Request-ID", "req-audit")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.Equal(t, audit.EventTypeOrgCreated, event.EventType)
	assert.Equal(t, audit.EventStatusSuccess, event.Status)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, outsideID, *event.ActorID)
	assert.Equal(t, "owner@acme.test", event.ActorEmail)
	assert.Equal(t, "req-audit", event.RequestID)
	require.NotNil(t, event.OrganizationID)
	assert.Equal(t, event.ResourceID, strconv.FormatInt(*event.OrganizationID, 10))

	// Reads are not audited
	w = serve(srv, "GET", "/orgs/"+event.ResourceID, userToken(t, outsideID.String()), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, recorder.events, 1)
}
