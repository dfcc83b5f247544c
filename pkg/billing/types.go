package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/usage"
)

var (
	// ErrInvoiceNotFound is returned when no invoice matches
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceExists is returned when the org already has an invoice for the period
	ErrInvoiceExists = errors.New("invoice already exists for period")
	// ErrNoCustomer is returned when an invoice cannot be sent because the org has no billing contact
	ErrNoCustomer = errors.New("organization has no billing customer")
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// Valid reports whether s is a known status
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusOpen, InvoiceStatusPaid, InvoiceStatusVoid, InvoiceStatusUncollectible:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// Settles reports whether s is a status an invoice reaches only after it was opened
func (s InvoiceStatus) Settles() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid || s == InvoiceStatusUncollectible
}

// Source identifies who requested a transition
type Source string

const (
	SourceSend   Source = "send"
	SourceAdmin  Source = "admin"
	SourceStripe Source = "stripe"
)

// Invoice is a persisted monthly usage invoice
type Invoice struct {
	ID               int64             `json:"id"`
	OrgID            int64             `json:"org_id"`
	InvoiceNumber    string            `json:"invoice_number"`
	PeriodStart      time.Time         `json:"period_start"`
	PeriodEnd        time.Time         `json:"period_end"`
	Breakdown        pricing.Breakdown `json:"breakdown"`
	PricingConfigID  *int64            `json:"pricing_config_id,omitempty"`
	TotalCents       int64             `json:"total_cents"`
	Currency         string            `json:"currency"`
	Status           InvoiceStatus     `json:"status"`
	StripeInvoiceID  string            `json:"stripe_invoice_id,omitempty"`
	HostedInvoiceURL string            `json:"hosted_invoice_url,omitempty"`
	DueDate          *time.Time        `json:"due_date,omitempty"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	VoidedAt         *time.Time        `json:"voided_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Period returns the billing period the invoice covers
func (i *Invoice) Period() usage.Period {
	return usage.Period{Start: i.PeriodStart, End: i.PeriodEnd}
}

// InvoiceNumber formats the human-readable number for an org's invoice in period
func InvoiceNumber(orgID int64, period usage.Period) string {
	return fmt.Sprintf("INV-%d-%s", orgID, period.Start.Format("200601"))
}

// Estimate is a live, never persisted preview of the current period's charges
type Estimate struct {
	Usage                *usage.Snapshot   `json:"usage"`
	Breakdown            pricing.Breakdown `json:"breakdown"`
	EstimatedAmountCents int64             `json:"estimated_amount_cents"`
	PricingConfigID      *int64            `json:"pricing_config_id,omitempty"`
	PricingConfigName    string            `json:"pricing_config_name"`
	ComputedAt           time.Time         `json:"computed_at"`
}

// ListFilter narrows an invoice listing
type ListFilter struct {
	Status InvoiceStatus
	// PeriodStart, when set, selects the invoice for a single period
	PeriodStart *time.Time
	Limit       int
	Offset      int
}

// Normalize clamps the page size to [1, 100] and the offset to >= 0
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Service defines the invoice operations exposed to handlers and workers
type Service interface {
	Estimate(ctx context.Context, orgID int64) (*Estimate, error)
	Generate(ctx context.Context, orgID int64, period usage.Period) (*Invoice, error)
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, orgID int64, filter ListFilter) ([]*Invoice, error)

	Send(ctx context.Context, id int64) (*Invoice, error)
	MarkPaid(ctx context.Context, id int64) (*Invoice, error)
	Void(ctx context.Context, id int64) (*Invoice, error)
	MarkUncollectible(ctx context.Context, id int64) (*Invoice, error)

	ApplyStripeStatus(ctx context.Context, stripeInvoiceID string, status InvoiceStatus, at time.Time) error
}
