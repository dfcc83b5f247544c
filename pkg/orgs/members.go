package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AddMember adds userID to the organization, or changes the role of an existing member
func (s *PostgresService) AddMember(ctx context.Context, orgID int64, userID uuid.UUID, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	query := `
		INSERT INTO org_members (org_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, userID, role); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// GetMemberRole returns the role of userID within orgID
func (s *PostgresService) GetMemberRole(ctx context.Context, orgID int64, userID uuid.UUID) (Role, error) {
	query := `SELECT role FROM org_members WHERE org_id = $1 AND user_id = $2`

	var role Role
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}
