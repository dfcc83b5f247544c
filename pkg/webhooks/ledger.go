package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Attempt is the ledger state of an event at the start of a delivery
type Attempt struct {
	AlreadyProcessed bool
	// Attempts counts deliveries including the current one
	Attempts int
}

// StoredEvent is a failed event due for a local replay
type StoredEvent struct {
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"-"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// EventStore is the ledger of received provider events
type EventStore interface {
	// Begin records a delivery of eventID. An event counts as processed
	// only once Complete has been called for it.
	Begin(ctx context.Context, eventID, eventType string, payload []byte) (Attempt, error)
	Complete(ctx context.Context, eventID string) error
	// Fail records cause; a nil retryAt leaves the event to Stripe's own redelivery
	Fail(ctx context.Context, eventID string, cause error, retryAt *time.Time) error
	DueForRetry(ctx context.Context, now time.Time, limit int) ([]StoredEvent, error)
}

// PostgresEventStore implements EventStore on billing_webhook_events
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a new PostgresEventStore
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Begin inserts the event or bumps the attempt count of an unprocessed one.
// The conditional upsert returns no row when the event was already processed.
func (s *PostgresEventStore) Begin(ctx context.Context, eventID, eventType string, payload []byte) (Attempt, error) {
	query := `
		INSERT INTO billing_webhook_events (event_id, event_type, payload, attempts)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (event_id) DO UPDATE
			SET attempts = billing_webhook_events.attempts + 1,
			    payload = COALESCE(EXCLUDED.payload, billing_webhook_events.payload)
			WHERE billing_webhook_events.processed_at IS NULL
		RETURNING attempts
	`
	var attempts int
	err := s.db.QueryRowContext(ctx, query, eventID, eventType, payload).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{AlreadyProcessed: true}, nil
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return Attempt{Attempts: attempts}, nil
}

// Complete marks the event processed
func (s *PostgresEventStore) Complete(ctx context.Context, eventID string) error {
	query := `
		UPDATE billing_webhook_events
		SET processed_at = NOW(), last_error = '', next_retry_at = NULL
		WHERE event_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to complete webhook event: %w", err)
	}
	return nil
}

// Fail stores the handler error and the next local replay time
func (s *PostgresEventStore) Fail(ctx context.Context, eventID string, cause error, retryAt *time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `UPDATE billing_webhook_events SET last_error = $1, next_retry_at = $2 WHERE event_id = $3`
	if _, err := s.db.ExecContext(ctx, query, msg, retryAt, eventID); err != nil {
		return fmt.Errorf("failed to record webhook failure: %w", err)
	}
	return nil
}

// DueForRetry returns unprocessed events whose replay time has passed, oldest first
func (s *PostgresEventStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT event_id, event_type, payload, attempts, last_error, next_retry_at
		FROM billing_webhook_events
		WHERE processed_at IS NULL AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook retries: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var (
			e       StoredEvent
			retryAt sql.NullTime
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &e.Payload, &e.Attempts, &e.LastError, &retryAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		if retryAt.Valid {
			e.NextRetryAt = &retryAt.Time
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
