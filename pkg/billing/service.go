package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
	"github.com/platinummonkey/academy/pkg/pricing"
	"github.com/platinummonkey/academy/pkg/usage"
)

// PricingSource supplies the rate table used to price usage
type PricingSource interface {
	Active(ctx context.Context) (*pricing.Config, error)
}

// InvoiceService implements Service
type InvoiceService struct {
	store    Store
	gateway  Gateway
	orgs     orgs.Service
	usage    usage.Aggregator
	strict   usage.Aggregator
	pricing  PricingSource
	metrics  *observability.Metrics
	archiver *Archiver
	now      func() time.Time
}

// NewInvoiceService creates an InvoiceService. gateway may be nil, in which
// case invoices are tracked locally only.
func NewInvoiceService(store Store, gateway Gateway, orgService orgs.Service, agg usage.Aggregator,
	pricingSource PricingSource, metrics *observability.Metrics) *InvoiceService {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &InvoiceService{
		store:   store,
		gateway: gateway,
		orgs:    orgService,
		usage:   agg,
		strict:  agg,
		pricing: pricingSource,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithArchiver copies sent and paid invoices to object storage
func (s *InvoiceService) WithArchiver(a *Archiver) *InvoiceService {
	s.archiver = a
	return s
}

// WithStrictUsage sets the aggregator Generate reads final usage from. It
// must bypass any snapshot cache so late samples are billed.
func (s *InvoiceService) WithStrictUsage(agg usage.Aggregator) *InvoiceService {
	s.strict = agg
	return s
}

// Estimate prices the current period's usage so far. Usage aggregation
// failures degrade to a zero snapshot and a missing or unreadable pricing
// config degrades to the defaults, so an estimate is always produced for an
// existing org.
func (s *InvoiceService) Estimate(ctx context.Context, orgID int64) (*Estimate, error) {
	if _, err := s.orgs.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	snap := usage.SafeSnapshot(ctx, s.usage, orgID, usage.CurrentPeriod(now), s.metrics)

	cfg, err := s.pricing.Active(ctx)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Pricing lookup failed, using default config")
		def := pricing.DefaultConfig()
		cfg = &def
	}

	breakdown := pricing.Calculate(snap, *cfg)
	return &Estimate{
		Usage:                snap,
		Breakdown:            breakdown,
		EstimatedAmountCents: breakdown.TotalCents,
		PricingConfigID:      configID(cfg),
		PricingConfigName:    cfg.Name,
		ComputedAt:           now,
	}, nil
}

// Generate creates the draft invoice for orgID and period. Usage must be
// read successfully; a failed aggregation is an error rather than a zero
// invoice. Usage is read through the strict aggregator, never a cache.
// When the invoice already exists it is returned with ErrInvoiceExists.
func (s *InvoiceService) Generate(ctx context.Context, orgID int64, period usage.Period) (*Invoice, error) {
	logger := observability.FromContext(ctx).WithField("org_id", orgID).WithField("period", period.Key())

	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	snap, err := s.strict.Snapshot(ctx, org.ID, period)
	if err != nil {
		s.metrics.UsageRPCFailuresTotal.Inc()
		s.metrics.InvoicesGeneratedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	cfg, err := s.pricing.Active(ctx)
	if err != nil {
		s.metrics.InvoicesGeneratedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}

	breakdown := pricing.Calculate(snap, *cfg)
	inv := &Invoice{
		OrgID:           org.ID,
		InvoiceNumber:   InvoiceNumber(org.ID, period),
		PeriodStart:     period.Start,
		PeriodEnd:       period.End,
		Breakdown:       breakdown,
		PricingConfigID: configID(cfg),
		TotalCents:      breakdown.TotalCents,
		Currency:        cfg.Currency,
		Status:          InvoiceStatusDraft,
	}

	if err := s.store.Create(ctx, inv); err != nil {
		if errors.Is(err, ErrInvoiceExists) {
			s.metrics.InvoicesGeneratedTotal.WithLabelValues("exists").Inc()
			return inv, ErrInvoiceExists
		}
		s.metrics.InvoicesGeneratedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.InvoicesGeneratedTotal.WithLabelValues("created").Inc()
	s.metrics.InvoiceAmountCents.Observe(float64(inv.TotalCents))
	logger.WithField("invoice_id", inv.ID).WithField("total_cents", inv.TotalCents).Info("Generated invoice")
	return inv, nil
}

// Get retrieves an invoice by ID
func (s *InvoiceService) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.store.Get(ctx, id)
}

// List returns an organization's invoices
func (s *InvoiceService) List(ctx context.Context, orgID int64, filter ListFilter) ([]*Invoice, error) {
	return s.store.List(ctx, orgID, filter)
}

// Send issues a draft invoice. With a gateway configured the invoice is
// created and emailed through Stripe first; the local status only moves to
// open once Stripe has accepted it. Sending an open invoice is a no-op.
func (s *InvoiceService) Send(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(inv.Status, InvoiceStatusOpen, SourceSend); err != nil {
		if errors.Is(err, ErrNoTransition) {
			return inv, nil
		}
		return inv, err
	}

	settled := false
	if s.gateway != nil && inv.StripeInvoiceID == "" {
		remote, err := s.pushToStripe(ctx, inv)
		if err != nil {
			return inv, err
		}
		settled = remote.Paid
	}

	sent, err := s.transition(ctx, inv.ID, InvoiceStatusOpen, SourceSend)
	if err != nil || !settled {
		return sent, err
	}
	// Stripe settles zero amount invoices on finalize
	return s.transition(ctx, inv.ID, InvoiceStatusPaid, SourceStripe)
}

func (s *InvoiceService) pushToStripe(ctx context.Context, inv *Invoice) (*RemoteInvoice, error) {
	org, err := s.orgs.GetOrganization(ctx, inv.OrgID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, org)
	if err != nil {
		return nil, err
	}
	if org.StripeCustomerID != customerID {
		if err := s.orgs.SetStripeCustomer(ctx, org.ID, customerID); err != nil {
			return nil, err
		}
	}

	remote, err := s.gateway.CreateInvoice(ctx, customerID, inv)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetStripeInvoice(ctx, inv.ID, remote.ID, remote.HostedURL, remote.DueDate); err != nil {
		return nil, err
	}

	inv.StripeInvoiceID = remote.ID
	inv.HostedInvoiceURL = remote.HostedURL
	inv.DueDate = remote.DueDate
	return remote, nil
}

// MarkPaid records payment received outside Stripe
func (s *InvoiceService) MarkPaid(ctx context.Context, id int64) (*Invoice, error) {
	return s.adminTransition(ctx, id, InvoiceStatusPaid, func(g Gateway, stripeID string) error {
		return g.PayOutOfBand(ctx, stripeID)
	})
}

// Void cancels an invoice
func (s *InvoiceService) Void(ctx context.Context, id int64) (*Invoice, error) {
	return s.adminTransition(ctx, id, InvoiceStatusVoid, func(g Gateway, stripeID string) error {
		return g.Void(ctx, stripeID)
	})
}

// MarkUncollectible writes an invoice off
func (s *InvoiceService) MarkUncollectible(ctx context.Context, id int64) (*Invoice, error) {
	return s.adminTransition(ctx, id, InvoiceStatusUncollectible, func(g Gateway, stripeID string) error {
		return g.MarkUncollectible(ctx, stripeID)
	})
}

func (s *InvoiceService) adminTransition(ctx context.Context, id int64, to InvoiceStatus, remote func(Gateway, string) error) (*Invoice, error) {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(inv.Status, to, SourceAdmin); err != nil {
		if errors.Is(err, ErrNoTransition) {
			return inv, nil
		}
		return inv, err
	}

	if s.gateway != nil && inv.StripeInvoiceID != "" {
		if err := remote(s.gateway, inv.StripeInvoiceID); err != nil {
			return inv, err
		}
	}

	return s.transition(ctx, id, to, SourceAdmin)
}

// ApplyStripeStatus mirrors a status reported by a Stripe webhook. Unknown
// invoices, repeated events and events that would move the invoice backwards
// are logged and ignored. A settled status reported for a local draft first
// moves the draft to open, since Stripe only settles finalized invoices.
func (s *InvoiceService) ApplyStripeStatus(ctx context.Context, stripeInvoiceID string, status InvoiceStatus, at time.Time) error {
	logger := observability.FromContext(ctx).
		WithField("stripe_invoice_id", stripeInvoiceID).
		WithField("status", string(status))

	inv, err := s.store.GetByStripeID(ctx, stripeInvoiceID)
	if errors.Is(err, ErrInvoiceNotFound) {
		logger.Info("Ignoring status for unknown invoice")
		return nil
	}
	if err != nil {
		return err
	}

	if at.IsZero() {
		at = s.now()
	}
	if inv.Status == InvoiceStatusDraft && status.Settles() {
		_, from, err := s.store.Transition(ctx, inv.ID, InvoiceStatusOpen, SourceStripe, at)
		switch {
		case err == nil:
			logger.WithField("invoice_id", inv.ID).Info("Opened draft ahead of Stripe status")
			s.afterTransition(ctx, inv.ID, from, InvoiceStatusOpen, SourceStripe)
		case errors.Is(err, ErrNoTransition), IsTransitionError(err):
			// Moved concurrently; the transition below decides
		default:
			return err
		}
	}
	_, from, err := s.store.Transition(ctx, inv.ID, status, SourceStripe, at)
	switch {
	case err == nil:
		logger.WithField("invoice_id", inv.ID).WithField("from", string(from)).Info("Applied Stripe invoice status")
		s.afterTransition(ctx, inv.ID, from, status, SourceStripe)
		return nil
	case errors.Is(err, ErrNoTransition):
		logger.WithField("invoice_id", inv.ID).Debug("Invoice already in reported status")
		return nil
	case IsTransitionError(err):
		logger.WithField("invoice_id", inv.ID).WithField("from", string(from)).Warn("Ignoring out-of-order invoice status")
		return nil
	default:
		return err
	}
}

func (s *InvoiceService) transition(ctx context.Context, id int64, to InvoiceStatus, source Source) (*Invoice, error) {
	inv, from, err := s.store.Transition(ctx, id, to, source, s.now().UTC())
	if errors.Is(err, ErrNoTransition) {
		// A webhook got there first
		return inv, nil
	}
	if err != nil {
		return inv, err
	}

	observability.FromContext(ctx).
		WithField("invoice_id", id).
		WithField("from", string(from)).
		WithField("to", string(to)).
		WithField("source", string(source)).
		Info("Invoice status changed")
	s.afterTransition(ctx, id, from, to, source)
	return inv, nil
}

func (s *InvoiceService) afterTransition(ctx context.Context, id int64, from, to InvoiceStatus, source Source) {
	s.metrics.InvoiceTransitionsTotal.WithLabelValues(string(from), string(to), string(source)).Inc()

	if s.archiver != nil && (to == InvoiceStatusOpen || to == InvoiceStatusPaid) {
		s.archiver.ArchiveAsync(ctx, s.store, id)
	}
}

func configID(cfg *pricing.Config) *int64 {
	if cfg.IsFallback() {
		return nil
	}
	id := cfg.ID
	return &id
}
