package billing

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/orgs/orgstest"
	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/usage"
)

// memStore is an in-memory Store with the same transition rules as PostgresStore
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	invoices map[int64]*Invoice
}

func newMemStore() *memStore {
	return &memStore{invoices: map[int64]*Invoice{}}
}

func (m *memStore) Create(ctx context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.OrgID == inv.OrgID && existing.PeriodStart.Equal(inv.PeriodStart) {
			*inv = *existing
			return ErrInvoiceExists
		}
	}
	m.nextID++
	inv.ID = m.nextID
	inv.CreatedAt = time.Now()
	stored := *inv
	m.invoices[inv.ID] = &stored
	return nil
}

func (m *memStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *memStore) GetByStripeID(ctx context.Context, stripeID string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.StripeInvoiceID == stripeID {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (m *memStore) List(ctx context.Context, orgID int64, filter ListFilter) ([]*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Invoice
	for _, inv := range m.invoices {
		if filter.PeriodStart != nil && !inv.PeriodStart.Equal(*filter.PeriodStart) {
			continue
		}
		if inv.OrgID == orgID && (filter.Status == "" || inv.Status == filter.Status) {
			copied := *inv
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) SetStripeInvoice(ctx context.Context, id int64, stripeID, hostedURL string, due *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.StripeInvoiceID, inv.HostedInvoiceURL, inv.DueDate = stripeID, hostedURL, due
	return nil
}

func (m *memStore) Transition(ctx context.Context, id int64, to InvoiceStatus, source Source, at time.Time) (*Invoice, InvoiceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, "", ErrInvoiceNotFound
	}
	from := inv.Status
	if err := CheckTransition(from, to, source); err != nil {
		copied := *inv
		return &copied, from, err
	}
	inv.Status = to
	switch to {
	case InvoiceStatusPaid:
		inv.PaidAt = &at
	case InvoiceStatusVoid:
		inv.VoidedAt = &at
	}
	copied := *inv
	return &copied, from, nil
}

func (m *memStore) status(id int64) InvoiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invoices[id].Status
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	failWith error
	// paidOnFinalize makes CreateInvoice report an invoice Stripe settled itself
	paidOnFinalize bool
}

func (g *fakeGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.failWith
}

func (g *fakeGateway) EnsureCustomer(ctx context.Context, org *orgs.Organization) (string, error) {
	if err := g.record("customer"); err != nil {
		return "", err
	}
	if org.StripeCustomerID != "" {
		return org.StripeCustomerID, nil
	}
	return "cus_new", nil
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, customerID string, inv *Invoice) (*RemoteInvoice, error) {
	if err := g.record("create:" + customerID); err != nil {
		return nil, err
	}
	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	return &RemoteInvoice{ID: "in_remote", HostedURL: "https://invoice.stripe.test/in_remote", DueDate: &due, Paid: g.paidOnFinalize}, nil
}

func (g *fakeGateway) PayOutOfBand(ctx context.Context, id string) error { return g.record("pay:" + id) }
func (g *fakeGateway) Void(ctx context.Context, id string) error         { return g.record("void:" + id) }
func (g *fakeGateway) MarkUncollectible(ctx context.Context, id string) error {
	return g.record("uncollectible:" + id)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type fakeAggregator struct {
	snap *usage.Snapshot
	err  error
}

func (a *fakeAggregator) Snapshot(ctx context.Context, orgID int64, period usage.Period) (*usage.Snapshot, error) {
	if a.err != nil {
		return nil, a.err
	}
	s := *a.snap
	s.OrgID, s.PeriodStart, s.PeriodEnd = orgID, period.Start, period.End
	return &s, nil
}

type fakePricing struct {
	cfg *pricing.Config
	err error
}

func (p *fakePricing) Active(ctx context.Context) (*pricing.Config, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.cfg == nil {
		cfg := pricing.DefaultConfig()
		return &cfg, nil
	}
	copied := *p.cfg
	return &copied, nil
}

// exampleUsage prices to 20465 cents under the default config
var exampleUsage = &usage.Snapshot{
	ActiveStudents:      100,
	VideoStorageBytes:   50 * pricing.BytesPerGB,
	VideoBandwidthBytes: 200 * pricing.BytesPerGB,
	CertificatesIssued:  20,
}

func activeOrg(id int64) *orgs.Organization {
	return orgstest.Active(id)
}
