package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/academy/pkg/billing"
	"github.com/platinummonkey/academy/pkg/connect"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/orgs/orgstest"
	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/usage"
)

var errNotImplemented = errors.New("not implemented")

// mockBillingService implements billing.Service for testing
type mockBillingService struct {
	estimateFunc          func(ctx context.Context, orgID int64) (*billing.Estimate, error)
	generateFunc          func(ctx context.Context, orgID int64, period usage.Period) (*billing.Invoice, error)
	getFunc               func(ctx context.Context, id int64) (*billing.Invoice, error)
	listFunc              func(ctx context.Context, orgID int64, filter billing.ListFilter) ([]*billing.Invoice, error)
	sendFunc              func(ctx context.Context, id int64) (*billing.Invoice, error)
	markPaidFunc          func(ctx context.Context, id int64) (*billing.Invoice, error)
	voidFunc              func(ctx context.Context, id int64) (*billing.Invoice, error)
	markUncollectibleFunc func(ctx context.Context, id int64) (*billing.Invoice, error)
}

var _ billing.Service = (*mockBillingService)(nil)

func (m *mockBillingService) Estimate(ctx context.Context, orgID int64) (*billing.Estimate, error) {
	if m.estimateFunc != nil {
		return m.estimateFunc(ctx, orgID)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) Generate(ctx context.Context, orgID int64, period usage.Period) (*billing.Invoice, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, orgID, period)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) Get(ctx context.Context, id int64) (*billing.Invoice, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) List(ctx context.Context, orgID int64, filter billing.ListFilter) ([]*billing.Invoice, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, orgID, filter)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) Send(ctx context.Context, id int64) (*billing.Invoice, error) {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) MarkPaid(ctx context.Context, id int64) (*billing.Invoice, error) {
	if m.markPaidFunc != nil {
		return m.markPaidFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) Void(ctx context.Context, id int64) (*billing.Invoice, error) {
	if m.voidFunc != nil {
		return m.voidFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) MarkUncollectible(ctx context.Context, id int64) (*billing.Invoice, error) {
	if m.markUncollectibleFunc != nil {
		return m.markUncollectibleFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) ApplyStripeStatus(ctx context.Context, stripeInvoiceID string, status billing.InvoiceStatus, at time.Time) error {
	return errNotImplemented
}

// mockRecorder implements usage.Recorder for testing
type mockRecorder struct {
	samples []usage.BandwidthSample
	err     error
}

func (m *mockRecorder) RecordBandwidth(ctx context.Context, sample usage.BandwidthSample) error {
	if m.err != nil {
		return m.err
	}
	m.samples = append(m.samples, sample)
	return nil
}

// mockPricingStore implements pricing.Store for testing
type mockPricingStore struct {
	activeFunc   func(ctx context.Context) (*pricing.Config, error)
	getFunc      func(ctx context.Context, id int64) (*pricing.Config, error)
	listFunc     func(ctx context.Context) ([]*pricing.Config, error)
	createFunc   func(ctx context.Context, cfg *pricing.Config) error
	activateFunc func(ctx context.Context, id int64) error
}

var _ pricing.Store = (*mockPricingStore)(nil)

func (m *mockPricingStore) Active(ctx context.Context) (*pricing.Config, error) {
	if m.activeFunc != nil {
		return m.activeFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockPricingStore) Get(ctx context.Context, id int64) (*pricing.Config, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockPricingStore) List(ctx context.Context) ([]*pricing.Config, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockPricingStore) Create(ctx context.Context, cfg *pricing.Config) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, cfg)
	}
	return errNotImplemented
}

func (m *mockPricingStore) Activate(ctx context.Context, id int64) error {
	if m.activateFunc != nil {
		return m.activateFunc(ctx, id)
	}
	return errNotImplemented
}

// mockConnectService implements ConnectService for testing
type mockConnectService struct {
	startOnboardingFunc func(ctx context.Context, orgID int64, refreshURL, returnURL string) (string, error)
	checkoutFunc        func(ctx context.Context, req connect.CheckoutRequest) (*connect.CheckoutSession, error)
}

func (m *mockConnectService) StartOnboarding(ctx context.Context, orgID int64, refreshURL, returnURL string) (string, error) {
	if m.startOnboardingFunc != nil {
		return m.startOnboardingFunc(ctx, orgID, refreshURL, returnURL)
	}
	return "", errNotImplemented
}

func (m *mockConnectService) CreateCourseCheckout(ctx context.Context, req connect.CheckoutRequest) (*connect.CheckoutSession, error) {
	if m.checkoutFunc != nil {
		return m.checkoutFunc(ctx, req)
	}
	return nil, errNotImplemented
}

var (
	ownerID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	adminID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	studentID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	outsideID = uuid.MustParse("44444444-4444-4444-4444-444444444444")
)

func user(id uuid.UUID) *middleware.Principal {
	return &middleware.Principal{UserID: id, Email: id.String()[:8] + "@example.test"}
}

func platformAdmin() *middleware.Principal {
	return &middleware.Principal{UserID: uuid.New(), PlatformAdmin: true}
}

func service() *middleware.Principal {
	return &middleware.Principal{Service: true}
}

// newOrgs returns a store holding org 1 with an owner, an admin and a student
func newOrgs(t *testing.T) *orgstest.Memory {
	t.Helper()
	org := orgstest.Active(1)
	org.BillingEmail = "billing@acme.test"
	m := orgstest.New(org)
	ctx := context.Background()
	require.NoError(t, m.AddMember(ctx, 1, ownerID, orgs.RoleOwner))
	require.NoError(t, m.AddMember(ctx, 1, adminID, orgs.RoleAdmin))
	require.NoError(t, m.AddMember(ctx, 1, studentID, orgs.RoleStudent))
	return m
}

// newTestRouter registers the handlers behind a middleware that authenticates every request as p
func newTestRouter(p *middleware.Principal, registrars ...RouteRegistrar) *mux.Router {
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p != nil {
				r = r.WithContext(middleware.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	for _, reg := range registrars {
		reg.RegisterRoutes(router)
	}
	return router
}

func do(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}
