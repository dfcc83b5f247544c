package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/platinummonkey/academy/pkg/observability"
)

// RetryConfig configures local replay of failed events
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       8,
		InitialDelay:      time.Minute,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy. Zero fields take the defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}

	return &RetryPolicy{
		config: config,
	}
}

// ShouldRetry determines if a failed event should be replayed again
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the delay before the next replay
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * (multiplier ^ (attempts - 1))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// Replayer re-runs failed events from their stored payloads
type Replayer struct {
	receiver  *Receiver
	events    EventStore
	batchSize int
	now       func() time.Time
}

// NewReplayer creates a replayer feeding due events back into receiver
func NewReplayer(receiver *Receiver, events EventStore) *Replayer {
	return &Replayer{
		receiver:  receiver,
		events:    events,
		batchSize: 50,
		now:       time.Now,
	}
}

// Run replays due events every interval until ctx is done
func (w *Replayer) Run(ctx context.Context, interval time.Duration) {
	logger := observability.FromContext(ctx).WithField("component", "webhook_replayer")
	defer observability.RecoverPanic(logger, "webhook replayer")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ReplayDue(ctx); err != nil {
				logger.WithError(err).Warn("Webhook replay pass failed")
			}
		}
	}
}

// ReplayDue processes one batch of due events and returns how many succeeded
func (w *Replayer) ReplayDue(ctx context.Context) (int, error) {
	due, err := w.events.DueForRetry(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, err
	}

	succeeded := 0
	for _, stored := range due {
		logger := observability.FromContext(ctx).
			WithField("event_id", stored.EventID).
			WithField("attempts", stored.Attempts)

		var event stripe.Event
		if err := json.Unmarshal(stored.Payload, &event); err != nil {
			// An unreadable payload cannot succeed later; stop replaying it
			logger.WithError(err).Error("Dropping webhook event with unreadable payload")
			if ferr := w.events.Fail(ctx, stored.EventID, fmt.Errorf("unreadable payload: %w", err), nil); ferr != nil {
				return succeeded, ferr
			}
			continue
		}

		outcome, err := w.receiver.Process(ctx, event, stored.Payload)
		if err != nil {
			logger.WithError(err).Warn("Webhook replay failed")
			continue
		}
		logger.WithField("outcome", string(outcome)).Info("Replayed webhook event")
		succeeded++
	}
	return succeeded, nil
}
