package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// DaysUntilDue is the payment term given on sent invoices
const DaysUntilDue = 30

// RemoteInvoice is the Stripe side of a sent invoice
type RemoteInvoice struct {
	ID        string
	HostedURL string
	DueDate   *time.Time
	// Paid is set when Stripe settled the invoice on finalize
	Paid bool
}

// Gateway is the payment provider side of the invoice lifecycle
type Gateway interface {
	// EnsureCustomer returns the org's customer id, creating the customer if needed
	EnsureCustomer(ctx context.Context, org *orgs.Organization) (string, error)
	// CreateInvoice creates, finalizes and sends inv to customerID
	CreateInvoice(ctx context.Context, customerID string, inv *Invoice) (*RemoteInvoice, error)
	PayOutOfBand(ctx context.Context, stripeInvoiceID string) error
	Void(ctx context.Context, stripeInvoiceID string) error
	MarkUncollectible(ctx context.Context, stripeInvoiceID string) error
}

// StripeGateway implements Gateway with the Stripe API
type StripeGateway struct {
	api     *client.API
	metrics *observability.Metrics
}

// NewStripeGateway creates a gateway using api
func NewStripeGateway(api *client.API, metrics *observability.Metrics) *StripeGateway {
	return &StripeGateway{api: api, metrics: metrics}
}

// EnsureCustomer returns the org's Stripe customer, creating one on first use
func (g *StripeGateway) EnsureCustomer(ctx context.Context, org *orgs.Organization) (string, error) {
	if org.StripeCustomerID != "" {
		return org.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(org.DisplayName),
	}
	if org.BillingEmail != "" {
		params.Email = stripe.String(org.BillingEmail)
	}
	params.AddMetadata("org_id", strconv.FormatInt(org.ID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("org-%d-customer", org.ID))

	customer, err := g.api.Customers.New(params)
	g.metrics.ObserveStripe("customer.create", err)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return customer.ID, nil
}

// CreateInvoice mirrors inv as a Stripe invoice with one item per charged
// dimension, then finalizes and emails it. Invoices Stripe settles on
// finalize, such as zero amount ones, are not emailed. Every call is keyed on the local
// invoice id so a retried Send never duplicates the remote invoice.
func (g *StripeGateway) CreateInvoice(ctx context.Context, customerID string, inv *Invoice) (*RemoteInvoice, error) {
	keyPrefix := fmt.Sprintf("invoice-%d", inv.ID)

	params := &stripe.InvoiceParams{
		Params:                      stripe.Params{Context: ctx},
		Customer:                    stripe.String(customerID),
		Currency:                    stripe.String(inv.Currency),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:                stripe.Int64(DaysUntilDue),
		AutoAdvance:                 stripe.Bool(false),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
		Description:                 stripe.String(fmt.Sprintf("%s usage %s", inv.InvoiceNumber, inv.Period().Key())),
	}
	params.AddMetadata("invoice_id", strconv.FormatInt(inv.ID, 10))
	params.AddMetadata("org_id", strconv.FormatInt(inv.OrgID, 10))
	params.AddMetadata("invoice_number", inv.InvoiceNumber)
	params.SetIdempotencyKey(keyPrefix + "-create")

	remote, err := g.api.Invoices.New(params)
	g.metrics.ObserveStripe("invoice.create", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe invoice: %w", err)
	}

	for _, item := range inv.Breakdown.Items() {
		if item.AmountCents <= 0 {
			continue
		}
		itemParams := &stripe.InvoiceItemParams{
			Params:      stripe.Params{Context: ctx},
			Customer:    stripe.String(customerID),
			Invoice:     stripe.String(remote.ID),
			Currency:    stripe.String(inv.Currency),
			Amount:      stripe.Int64(item.AmountCents),
			Description: stripe.String(fmt.Sprintf("%s: %s billable", item.Description, item.Billable.String())),
		}
		itemParams.SetIdempotencyKey(fmt.Sprintf("%s-item-%s", keyPrefix, item.Dimension))

		_, err := g.api.InvoiceItems.New(itemParams)
		g.metrics.ObserveStripe("invoice_item.create", err)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s line item: %w", item.Dimension, err)
		}
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{Params: stripe.Params{Context: ctx}}
	finalizeParams.SetIdempotencyKey(keyPrefix + "-finalize")
	remote, err = g.api.Invoices.FinalizeInvoice(remote.ID, finalizeParams)
	g.metrics.ObserveStripe("invoice.finalize", err)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize stripe invoice: %w", err)
	}
	if remote.Status == stripe.InvoiceStatusPaid {
		result := remoteInvoice(remote)
		result.Paid = true
		return result, nil
	}

	sendParams := &stripe.InvoiceSendInvoiceParams{Params: stripe.Params{Context: ctx}}
	sendParams.SetIdempotencyKey(keyPrefix + "-send")
	sent, err := g.api.Invoices.SendInvoice(remote.ID, sendParams)
	g.metrics.ObserveStripe("invoice.send", err)
	if err != nil {
		return nil, fmt.Errorf("failed to send stripe invoice: %w", err)
	}

	return remoteInvoice(sent), nil
}

func remoteInvoice(inv *stripe.Invoice) *RemoteInvoice {
	result := &RemoteInvoice{ID: inv.ID, HostedURL: inv.HostedInvoiceURL}
	if inv.DueDate > 0 {
		due := time.Unix(inv.DueDate, 0).UTC()
		result.DueDate = &due
	}
	return result
}

// PayOutOfBand records a payment collected outside Stripe
func (g *StripeGateway) PayOutOfBand(ctx context.Context, stripeInvoiceID string) error {
	params := &stripe.InvoicePayParams{
		Params:        stripe.Params{Context: ctx},
		PaidOutOfBand: stripe.Bool(true),
	}
	_, err := g.api.Invoices.Pay(stripeInvoiceID, params)
	g.metrics.ObserveStripe("invoice.pay", err)
	if err != nil {
		return fmt.Errorf("failed to mark stripe invoice paid: %w", err)
	}
	return nil
}

// Void voids the Stripe invoice
func (g *StripeGateway) Void(ctx context.Context, stripeInvoiceID string) error {
	params := &stripe.InvoiceVoidInvoiceParams{Params: stripe.Params{Context: ctx}}
	_, err := g.api.Invoices.VoidInvoice(stripeInvoiceID, params)
	g.metrics.ObserveStripe("invoice.void", err)
	if err != nil {
		return fmt.Errorf("failed to void stripe invoice: %w", err)
	}
	return nil
}

// MarkUncollectible marks the Stripe invoice uncollectible
func (g *StripeGateway) MarkUncollectible(ctx context.Context, stripeInvoiceID string) error {
	params := &stripe.InvoiceMarkUncollectibleParams{Params: stripe.Params{Context: ctx}}
	_, err := g.api.Invoices.MarkUncollectible(stripeInvoiceID, params)
	g.metrics.ObserveStripe("invoice.mark_uncollectible", err)
	if err != nil {
		return fmt.Errorf("failed to mark stripe invoice uncollectible: %w", err)
	}
	return nil
}
