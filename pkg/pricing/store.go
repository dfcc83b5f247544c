package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/academy/pkg/storage/postgres"
)

// Store manages versioned pricing configs
type Store interface {
	// Active returns the active config, or the fallback when none is active
	Active(ctx context.Context) (*Config, error)
	Get(ctx context.Context, id int64) (*Config, error)
	List(ctx context.Context) ([]*Config, error)
	// Create stores cfg as the next version of cfg.Name. The new row is inactive.
	Create(ctx context.Context, cfg *Config) error
	// Activate makes id the only active config
	Activate(ctx context.Context, id int64) error
}

const configColumns = `id, name, version, currency, price_per_active_student, price_per_gb_storage,
	price_per_gb_bandwidth, price_per_certificate, free_students_limit, free_storage_gb,
	free_bandwidth_gb, is_active, created_at`

// PostgresStore implements Store on the pricing_configs table
type PostgresStore struct {
	db       *sql.DB
	fallback *Fallback
}

// NewPostgresStore creates a store; fallback supplies the config used when none is active
func NewPostgresStore(db *sql.DB, fallback *Fallback) *PostgresStore {
	if fallback == nil {
		fallback = NewFallback(DefaultConfig())
	}
	return &PostgresStore{db: db, fallback: fallback}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*Config, error) {
	cfg := &Config{}
	err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.Version, &cfg.Currency,
		&cfg.PricePerActiveStudent, &cfg.PricePerGBStorage, &cfg.PricePerGBBandwidth, &cfg.PricePerCertificate,
		&cfg.FreeStudentsLimit, &cfg.FreeStorageGB, &cfg.FreeBandwidthGB,
		&cfg.IsActive, &cfg.CreatedAt,
	)
	return cfg, err
}

// Active returns the active config, or the fallback when no row is active
func (s *PostgresStore) Active(ctx context.Context) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM pricing_configs WHERE is_active = true ORDER BY version DESC LIMIT 1`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		fb := s.fallback.Get()
		return &fb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active pricing config: %w", err)
	}
	return cfg, nil
}

// Get returns the config with id
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM pricing_configs WHERE id = $1`

	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing config: %w", err)
	}
	return cfg, nil
}

// List returns every config, newest first
func (s *PostgresStore) List(ctx context.Context) ([]*Config, error) {
	query := `SELECT ` + configColumns + ` FROM pricing_configs ORDER BY name, version DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing configs: %w", err)
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Create inserts cfg as version max(version)+1 of its name
func (s *PostgresStore) Create(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO pricing_configs (
			name, version, currency, price_per_active_student, price_per_gb_storage,
			price_per_gb_bandwidth, price_per_certificate, free_students_limit,
			free_storage_gb, free_bandwidth_gb, is_active
		)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4, $5, $6, $7, $8, $9, false
		FROM pricing_configs WHERE name = $1
		RETURNING id, version, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		cfg.Name, cfg.Currency,
		cfg.PricePerActiveStudent, cfg.PricePerGBStorage, cfg.PricePerGBBandwidth, cfg.PricePerCertificate,
		cfg.FreeStudentsLimit, cfg.FreeStorageGB, cfg.FreeBandwidthGB,
	).Scan(&cfg.ID, &cfg.Version, &cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pricing config: %w", err)
	}
	cfg.IsActive = false
	return nil
}

// Activate deactivates every config and activates id in one transaction
func (s *PostgresStore) Activate(ctx context.Context, id int64) error {
	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE pricing_configs SET is_active = false WHERE is_active AND id <> $1`, id); err != nil {
			return fmt.Errorf("failed to deactivate pricing configs: %w", err)
		}

		result, err := tx.ExecContext(ctx, `UPDATE pricing_configs SET is_active = true WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to activate pricing config: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrConfigNotFound
		}
		return nil
	})
}
