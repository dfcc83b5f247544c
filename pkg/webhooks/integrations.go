package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/platinummonkey/academy/pkg/billing"
)

// InvoiceStatusApplier moves a local invoice to the status Stripe reports
type InvoiceStatusApplier interface {
	ApplyStripeStatus(ctx context.Context, stripeInvoiceID string, status billing.InvoiceStatus, at time.Time) error
}

// ConnectHandler applies Connect events
type ConnectHandler interface {
	HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error
	HandleAccountUpdated(ctx context.Context, account *stripe.Account) error
}

// RegisterBilling routes the invoice lifecycle events to invoices
func RegisterBilling(r *Receiver, invoices InvoiceStatusApplier) {
	r.Handle(EventInvoiceFinalized, invoiceHandler(invoices, billing.InvoiceStatusOpen))
	r.Handle(EventInvoicePaid, invoiceHandler(invoices, billing.InvoiceStatusPaid))
	r.Handle(EventInvoiceVoided, invoiceHandler(invoices, billing.InvoiceStatusVoid))
	r.Handle(EventInvoiceMarkedUncollectible, invoiceHandler(invoices, billing.InvoiceStatusUncollectible))
}

// RegisterConnect routes course checkout and connected account events to c
func RegisterConnect(r *Receiver, c ConnectHandler) {
	checkout := func(ctx context.Context, event stripe.Event) error {
		var session stripe.CheckoutSession
		if err := decode(event, &session); err != nil {
			return err
		}
		return c.HandleCheckoutCompleted(ctx, &session)
	}
	r.Handle(EventCheckoutCompleted, checkout)
	r.Handle(EventCheckoutAsyncSucceeded, checkout)

	r.Handle(EventAccountUpdated, func(ctx context.Context, event stripe.Event) error {
		var account stripe.Account
		if err := decode(event, &account); err != nil {
			return err
		}
		return c.HandleAccountUpdated(ctx, &account)
	})
}

func invoiceHandler(invoices InvoiceStatusApplier, status billing.InvoiceStatus) EventHandler {
	return func(ctx context.Context, event stripe.Event) error {
		var inv stripe.Invoice
		if err := decode(event, &inv); err != nil {
			return err
		}
		if inv.ID == "" {
			return fmt.Errorf("%s event %s has no invoice id", event.Type, event.ID)
		}
		return invoices.ApplyStripeStatus(ctx, inv.ID, status, transitionTime(&inv, status, event.Created))
	}
}

// transitionTime prefers the timestamp Stripe recorded for the transition over the event time
func transitionTime(inv *stripe.Invoice, status billing.InvoiceStatus, created int64) time.Time {
	at := created
	if t := inv.StatusTransitions; t != nil {
		switch status {
		case billing.InvoiceStatusOpen:
			at = firstNonZero(t.FinalizedAt, at)
		case billing.InvoiceStatusPaid:
			at = firstNonZero(t.PaidAt, at)
		case billing.InvoiceStatusVoid:
			at = firstNonZero(t.VoidedAt, at)
		case billing.InvoiceStatusUncollectible:
			at = firstNonZero(t.MarkedUncollectibleAt, at)
		}
	}
	if at == 0 {
		return time.Now().UTC()
	}
	return time.Unix(at, 0).UTC()
}

func firstNonZero(v, fallback int64) int64 {
	if v != 0 {
		return v
	}
	return fallback
}

func decode(event stripe.Event, dest interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%s event %s has no data", event.Type, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, dest); err != nil {
		return fmt.Errorf("failed to decode %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}
