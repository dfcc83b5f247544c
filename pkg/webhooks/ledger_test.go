package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEventStore_BeginNewEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO billing_webhook_events (.+) ON CONFLICT \\(event_id\\) DO UPDATE").
		WithArgs("evt_1", "invoice.paid", []byte(`{}`)).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(1))

	attempt, err := NewPostgresEventStore(db).Begin(context.Background(), "evt_1", "invoice.paid", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, attempt.AlreadyProcessed)
	assert.Equal(t, 1, attempt.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_BeginProcessedEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO billing_webhook_events").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}))

	attempt, err := NewPostgresEventStore(db).Begin(context.Background(), "evt_1", "invoice.paid", nil)
	require.NoError(t, err)
	assert.True(t, attempt.AlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO billing_webhook_events").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresEventStore(db).Begin(context.Background(), "evt_1", "invoice.paid", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record webhook event")
}

func TestPostgresEventStore_CompleteAndFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE billing_webhook_events SET processed_at = NOW\\(\\)").
		WithArgs("evt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE billing_webhook_events SET last_error = \\$1, next_retry_at = \\$2 WHERE event_id = \\$3").
		WithArgs("db down", sqlmock.AnyArg(), "evt_2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresEventStore(db)
	require.NoError(t, store.Complete(context.Background(), "evt_1"))

	retryAt := time.Now().Add(time.Minute)
	require.NoError(t, store.Fail(context.Background(), "evt_2", errors.New("db down"), &retryAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_DueForRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	retryAt := now.Add(-time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM billing_webhook_events WHERE processed_at IS NULL").
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "event_type", "payload", "attempts", "last_error", "next_retry_at"}).
			AddRow("evt_1", "invoice.paid", []byte(`{"id":"evt_1"}`), 2, "db down", retryAt))

	due, err := NewPostgresEventStore(db).DueForRetry(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "evt_1", due[0].EventID)
	assert.Equal(t, 2, due[0].Attempts)
	assert.Equal(t, "db down", due[0].LastError)
	require.NotNil(t, due[0].NextRetryAt)
	assert.Equal(t, retryAt, *due[0].NextRetryAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
