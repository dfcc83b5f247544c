package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/academy/pkg/storage/postgres"
)

const invoiceColumns = `id, org_id, invoice_number, period_start, period_end, breakdown, pricing_config_id,
	total_cents, currency, status, COALESCE(stripe_invoice_id, ''), hosted_invoice_url,
	due_date, paid_at, voided_at, created_at, updated_at`

// Store persists invoices
type Store interface {
	// Create inserts a draft. When the org already has an invoice for the
	// period, inv is overwritten with the stored row and ErrInvoiceExists is returned.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByStripeID(ctx context.Context, stripeInvoiceID string) (*Invoice, error)
	List(ctx context.Context, orgID int64, filter ListFilter) ([]*Invoice, error)
	SetStripeInvoice(ctx context.Context, id int64, stripeInvoiceID, hostedURL string, dueDate *time.Time) error
	// Transition locks the invoice, validates the move and applies it. It
	// returns the invoice after the move and the status it moved from.
	Transition(ctx context.Context, id int64, to InvoiceStatus, source Source, at time.Time) (*Invoice, InvoiceStatus, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	var breakdownJSON []byte
	err := row.Scan(
		&inv.ID, &inv.OrgID, &inv.InvoiceNumber, &inv.PeriodStart, &inv.PeriodEnd, &breakdownJSON,
		&inv.PricingConfigID, &inv.TotalCents, &inv.Currency, &inv.Status, &inv.StripeInvoiceID,
		&inv.HostedInvoiceURL, &inv.DueDate, &inv.PaidAt, &inv.VoidedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &inv.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}
	}
	return inv, nil
}

// Create inserts a draft invoice
func (s *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	breakdownJSON, err := json.Marshal(inv.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	if inv.Status == "" {
		inv.Status = InvoiceStatusDraft
	}

	query := `
		INSERT INTO invoices (org_id, invoice_number, period_start, period_end, breakdown,
			pricing_config_id, total_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, inv.OrgID, inv.InvoiceNumber, inv.PeriodStart, inv.PeriodEnd,
		breakdownJSON, inv.PricingConfigID, inv.TotalCents, inv.Currency, inv.Status).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	existing, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE org_id = $1 AND period_start = $2`,
		inv.OrgID, inv.PeriodStart))
	if err != nil {
		return fmt.Errorf("failed to load existing invoice: %w", err)
	}
	*inv = *existing
	return ErrInvoiceExists
}

// Get retrieves an invoice by ID
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetByStripeID retrieves an invoice by its Stripe invoice ID
func (s *PostgresStore) GetByStripeID(ctx context.Context, stripeInvoiceID string) (*Invoice, error) {
	return s.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE stripe_invoice_id = $1`, stripeInvoiceID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg interface{}) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// List returns an organization's invoices, newest period first
func (s *PostgresStore) List(ctx context.Context, orgID int64, filter ListFilter) ([]*Invoice, error) {
	filter = filter.Normalize()

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
			AND ($5::timestamptz IS NULL OR period_start = $5)
		ORDER BY period_start DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, string(filter.Status), filter.Limit, filter.Offset, filter.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// SetStripeInvoice links the local invoice to its Stripe counterpart
func (s *PostgresStore) SetStripeInvoice(ctx context.Context, id int64, stripeInvoiceID, hostedURL string, dueDate *time.Time) error {
	query := `
		UPDATE invoices
		SET stripe_invoice_id = NULLIF($1, ''), hosted_invoice_url = $2, due_date = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, stripeInvoiceID, hostedURL, dueDate, id)
	if err != nil {
		return fmt.Errorf("failed to set stripe invoice: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// Transition moves an invoice to status to inside a transaction holding the row lock
func (s *PostgresStore) Transition(ctx context.Context, id int64, to InvoiceStatus, source Source, at time.Time) (*Invoice, InvoiceStatus, error) {
	var (
		inv  *Invoice
		from InvoiceStatus
	)

	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := scanInvoice(tx.QueryRowContext(ctx,
			`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock invoice: %w", err)
		}
		from = current.Status
		inv = current

		if err := CheckTransition(from, to, source); err != nil {
			return err
		}

		query := `
			UPDATE invoices
			SET status = $1,
			    paid_at = CASE WHEN $1 = 'paid' THEN $2 ELSE paid_at END,
			    voided_at = CASE WHEN $1 = 'void' THEN $2 ELSE voided_at END,
			    updated_at = NOW()
			WHERE id = $3
			RETURNING updated_at
		`
		if err := tx.QueryRowContext(ctx, query, to, at, id).Scan(&inv.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}

		inv.Status = to
		switch to {
		case InvoiceStatusPaid:
			inv.PaidAt = &at
		case InvoiceStatusVoid:
			inv.VoidedAt = &at
		}
		return nil
	})
	if err != nil {
		return inv, from, err
	}
	return inv, from, nil
}
