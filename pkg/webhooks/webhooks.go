package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/platinummonkey/academy/pkg/observability"
)

// Stripe event types handled by the platform
const (
	EventInvoiceFinalized           stripe.EventType = "invoice.finalized"
	EventInvoicePaid                stripe.EventType = "invoice.paid"
	EventInvoiceVoided              stripe.EventType = "invoice.voided"
	EventInvoiceMarkedUncollectible stripe.EventType = "invoice.marked_uncollectible"
	EventCheckoutCompleted          stripe.EventType = "checkout.session.completed"
	EventCheckoutAsyncSucceeded     stripe.EventType = "checkout.session.async_payment_succeeded"
	EventAccountUpdated             stripe.EventType = "account.updated"
)

// ErrInvalidSignature is returned when a payload is not signed with the endpoint secret
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Outcome describes what the receiver did with an event
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// Verifier authenticates a raw webhook payload and decodes the event
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

// StripeVerifier checks the Stripe-Signature header against the endpoint signing secret
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewStripeVerifier creates a verifier for secret using Stripe's default timestamp tolerance
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify returns the decoded event or an error wrapping ErrInvalidSignature
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// EventHandler applies one event. Handlers must be idempotent.
type EventHandler func(ctx context.Context, event stripe.Event) error

// Receiver verifies, deduplicates and dispatches Stripe events
type Receiver struct {
	verifier Verifier
	events   EventStore
	policy   *RetryPolicy
	metrics  *observability.Metrics
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[stripe.EventType]EventHandler
}

// NewReceiver creates a receiver with the default retry policy
func NewReceiver(verifier Verifier, events EventStore, metrics *observability.Metrics) *Receiver {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Receiver{
		verifier: verifier,
		events:   events,
		policy:   NewRetryPolicy(DefaultRetryConfig()),
		metrics:  metrics,
		now:      time.Now,
		handlers: make(map[stripe.EventType]EventHandler),
	}
}

// WithRetryPolicy replaces the policy used to schedule local replays of failed events
func (r *Receiver) WithRetryPolicy(policy *RetryPolicy) *Receiver {
	r.policy = policy
	return r
}

// Handle registers h for eventType, replacing any previous handler
func (r *Receiver) Handle(eventType stripe.EventType, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Handles reports whether a handler is registered for eventType
func (r *Receiver) Handles(eventType stripe.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[eventType]
	return ok
}

// Receive verifies payload and processes the event it carries
func (r *Receiver) Receive(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	event, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		r.metrics.WebhookEventsTotal.WithLabelValues("unknown", string(OutcomeRejected)).Inc()
		return OutcomeRejected, err
	}
	return r.Process(ctx, event, payload)
}

// Process runs the handler for an already verified event at most once per
// event id. A handler error leaves the event unprocessed and is returned.
func (r *Receiver) Process(ctx context.Context, event stripe.Event, payload []byte) (Outcome, error) {
	logger := observability.FromContext(ctx).
		WithField("event_id", event.ID).
		WithField("event_type", string(event.Type))

	attempt, err := r.events.Begin(ctx, event.ID, string(event.Type), payload)
	if err != nil {
		r.observe(event.Type, OutcomeFailed)
		return OutcomeFailed, err
	}
	if attempt.AlreadyProcessed {
		logger.Debug("Skipping already processed event")
		r.observe(event.Type, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	r.mu.RLock()
	h, ok := r.handlers[event.Type]
	r.mu.RUnlock()

	if !ok {
		if err := r.events.Complete(ctx, event.ID); err != nil {
			return OutcomeFailed, err
		}
		r.observe(event.Type, OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	if herr := r.run(ctx, h, event); herr != nil {
		var retryAt *time.Time
		if r.policy.ShouldRetry(attempt.Attempts, herr) {
			next := r.now().Add(r.policy.NextRetryDelay(attempt.Attempts))
			retryAt = &next
		}
		if err := r.events.Fail(ctx, event.ID, herr, retryAt); err != nil {
			logger.WithError(err).Error("Failed to record webhook failure")
		}

		logger.WithError(herr).WithField("attempts", attempt.Attempts).Error("Webhook handler failed")
		observability.CaptureError(ctx, nil, herr, map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"attempts":   attempt.Attempts,
		})
		r.observe(event.Type, OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("failed to handle %s: %w", event.Type, herr)
	}

	if err := r.events.Complete(ctx, event.ID); err != nil {
		r.observe(event.Type, OutcomeFailed)
		return OutcomeFailed, err
	}
	r.observe(event.Type, OutcomeProcessed)
	return OutcomeProcessed, nil
}

// run invokes h, turning a panic into an error so the event is retried
func (r *Receiver) run(ctx context.Context, h EventHandler, event stripe.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s handler: %v", event.Type, rec)
		}
	}()
	return h(ctx, event)
}

func (r *Receiver) observe(eventType stripe.EventType, outcome Outcome) {
	label := string(eventType)
	if !r.Handles(eventType) {
		label = "other"
	}
	r.metrics.WebhookEventsTotal.WithLabelValues(label, string(outcome)).Inc()
}
