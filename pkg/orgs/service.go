package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/academy/pkg/storage/postgres"
)

const orgColumns = `id, name, slug, display_name, subdomain, branding, billing_email,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_account_id, ''), stripe_onboarded,
	status, created_at, updated_at`

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var (
		subdomain    sql.NullString
		brandingJSON []byte
	)
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.DisplayName, &subdomain, &brandingJSON,
		&org.BillingEmail, &org.StripeCustomerID, &org.StripeAccountID, &org.StripeOnboarded,
		&org.Status, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if subdomain.Valid {
		org.Subdomain = &subdomain.String
	}
	if len(brandingJSON) > 0 {
		if err := json.Unmarshal(brandingJSON, &org.Branding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal branding: %w", err)
		}
	}
	return org, nil
}

// CreateOrganization creates an organization and makes owner its first member
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization, owner uuid.UUID) error {
	if strings.TrimSpace(org.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidOrganization)
	}
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Slug == "" {
		return fmt.Errorf("%w: name must contain letters or digits", ErrInvalidOrganization)
	}
	if org.DisplayName == "" {
		org.DisplayName = org.Name
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}
	if org.Branding == nil {
		org.Branding = map[string]any{}
	}

	brandingJSON, err := json.Marshal(org.Branding)
	if err != nil {
		return fmt.Errorf("failed to marshal branding: %w", err)
	}

	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO organizations (name, slug, display_name, subdomain, branding, billing_email, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRowContext(ctx, query, org.Name, org.Slug, org.DisplayName, org.Subdomain,
			brandingJSON, org.BillingEmail, org.Status).
			Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
		if postgres.IsUniqueViolation(err, "") {
			return ErrSlugTaken
		}
		if err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO org_members (org_id, user_id, role) VALUES ($1, $2, $3)`,
			org.ID, owner, RoleOwner)
		if err != nil {
			return fmt.Errorf("failed to add owner: %w", err)
		}
		return nil
	})
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`

	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE slug = $1`

	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListActiveOrganizations returns every active organization ordered by id
func (s *PostgresService) ListActiveOrganizations(ctx context.Context) ([]*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE status = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, OrgStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpdateOrganization applies the non-nil fields of updates
func (s *PostgresService) UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.DisplayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argPos))
		args = append(args, *updates.DisplayName)
		argPos++
	}
	if updates.BillingEmail != nil {
		setClauses = append(setClauses, fmt.Sprintf("billing_email = $%d", argPos))
		args = append(args, *updates.BillingEmail)
		argPos++
	}
	if updates.Branding != nil {
		brandingJSON, err := json.Marshal(updates.Branding)
		if err != nil {
			return fmt.Errorf("failed to marshal branding: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("branding = $%d", argPos))
		args = append(args, brandingJSON)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	return s.execOne(ctx, "update organization", query, args...)
}

// SetStripeCustomer stores the platform customer used to invoice the org
func (s *PostgresService) SetStripeCustomer(ctx context.Context, orgID int64, customerID string) error {
	query := `UPDATE organizations SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`
	return s.execOne(ctx, "set stripe customer", query, customerID, orgID)
}

// SetStripeAccount links a Connect account; onboarding starts over for a new account
func (s *PostgresService) SetStripeAccount(ctx context.Context, orgID int64, accountID string) error {
	query := `
		UPDATE organizations
		SET stripe_account_id = $1, stripe_onboarded = false, updated_at = NOW()
		WHERE id = $2
	`
	return s.execOne(ctx, "set stripe account", query, accountID, orgID)
}

// SetOnboardedByAccount records the onboarding state reported for a Connect account
func (s *PostgresService) SetOnboardedByAccount(ctx context.Context, accountID string, onboarded bool) (*Organization, error) {
	query := `
		UPDATE organizations
		SET stripe_onboarded = $1, updated_at = NOW()
		WHERE stripe_account_id = $2
		RETURNING ` + orgColumns

	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, onboarded, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update onboarding status: %w", err)
	}
	return org, nil
}

func (s *PostgresService) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if postgres.IsUniqueViolation(err, "") {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// generateSlug lowercases name and collapses runs of other characters into single dashes
func generateSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
