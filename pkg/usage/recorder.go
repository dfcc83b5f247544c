package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBytes is returned when a bandwidth sample is not positive
var ErrInvalidBytes = errors.New("bandwidth bytes must be positive")

// BandwidthSample is one batch of streamed bytes reported by the CDN log processor
type BandwidthSample struct {
	OrgID      int64     `json:"org_id"`
	VideoID    *int64    `json:"video_id,omitempty"`
	Bytes      int64     `json:"bytes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder ingests metering events summed by get_org_usage
type Recorder interface {
	RecordBandwidth(ctx context.Context, sample BandwidthSample) error
}

// PostgresRecorder writes metering events to video_bandwidth_events
type PostgresRecorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRecorder creates a recorder backed by db
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db, now: time.Now}
}

// RecordBandwidth stores a bandwidth sample; a zero RecordedAt means now
func (r *PostgresRecorder) RecordBandwidth(ctx context.Context, sample BandwidthSample) error {
	if sample.Bytes <= 0 {
		return ErrInvalidBytes
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = r.now().UTC()
	}

	query := `
		INSERT INTO video_bandwidth_events (org_id, video_id, bytes, recorded_at)
		VALUES ($1, $2, $3, $4)
	`

	var videoID sql.NullInt64
	if sample.VideoID != nil {
		videoID = sql.NullInt64{Int64: *sample.VideoID, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, sample.OrgID, videoID, sample.Bytes, sample.RecordedAt); err != nil {
		return fmt.Errorf("failed to record bandwidth: %w", err)
	}
	return nil
}
