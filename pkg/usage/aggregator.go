package usage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/academy/pkg/observability"
)

// Aggregator computes usage snapshots
type Aggregator interface {
	Snapshot(ctx context.Context, orgID int64, period Period) (*Snapshot, error)
}

// PostgresAggregator reads usage through the get_org_usage database function
type PostgresAggregator struct {
	db *sql.DB
}

// NewPostgresAggregator creates an aggregator backed by db
func NewPostgresAggregator(db *sql.DB) *PostgresAggregator {
	return &PostgresAggregator{db: db}
}

// Snapshot calls get_org_usage for orgID over period
func (a *PostgresAggregator) Snapshot(ctx context.Context, orgID int64, period Period) (*Snapshot, error) {
	query := `
		SELECT active_students, video_storage_bytes, video_bandwidth_bytes, certificates_issued
		FROM get_org_usage($1, $2, $3)
	`

	snap := ZeroSnapshot(orgID, period)
	err := a.db.QueryRowContext(ctx, query, orgID, period.Start, period.End).Scan(
		&snap.ActiveStudents,
		&snap.VideoStorageBytes,
		&snap.VideoBandwidthBytes,
		&snap.CertificatesIssued,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage for org %d: %w", orgID, err)
	}

	return snap, nil
}

// SafeSnapshot returns the aggregated snapshot, or an all-zero snapshot when aggregation fails.
// It never returns nil.
func SafeSnapshot(ctx context.Context, agg Aggregator, orgID int64, period Period, metrics *observability.Metrics) *Snapshot {
	snap, err := agg.Snapshot(ctx, orgID, period)
	if err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("org_id", orgID).
			Warn("Usage aggregation failed, using zero snapshot")
		if metrics != nil {
			metrics.UsageRPCFailuresTotal.Inc()
		}
		return ZeroSnapshot(orgID, period)
	}
	return snap
}
