// Package webhooks receives Stripe events and applies them to billing and Connect state.
//
// # Overview
//
// Every delivery is signature-checked, recorded in the billing_webhook_events
// ledger and routed by event type to a registered handler. The ledger makes
// processing idempotent: an event id that was processed once is acknowledged
// without running its handler again.
//
// # Wired Events
//
// invoice.finalized, invoice.paid, invoice.voided, invoice.marked_uncollectible
// checkout.session.completed, checkout.session.async_payment_succeeded
// account.updated
//
// Unknown event types are acknowledged and recorded.
//
// # Usage Example
//
//	receiver := webhooks.NewReceiver(webhooks.NewStripeVerifier(secret), webhooks.NewPostgresEventStore(db), metrics)
//	webhooks.RegisterBilling(receiver, invoiceService)
//	webhooks.RegisterConnect(receiver, connectService)
//	webhooks.NewHandlers(receiver).RegisterRoutes(router)
//
// # Failures
//
// A handler error marks the event failed and is returned to Stripe as a 500,
// so Stripe redelivers it. Failed events are also replayed locally from the
// stored payload by a Replayer with exponential backoff:
//
// 1m, 2m, 4m, 8m, ... capped at 1h
// Max attempts: 8
//
// # Related Packages
//
//   - pkg/billing: invoice status changes
//   - pkg/connect: course purchases and onboarding
package webhooks
