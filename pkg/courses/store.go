package courses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetCourse retrieves a course by ID
func (s *PostgresStore) GetCourse(ctx context.Context, id int64) (*Course, error) {
	query := `
		SELECT id, org_id, title, price_cents, currency, is_published, created_at
		FROM courses
		WHERE id = $1
	`

	c := &Course{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OrgID, &c.Title, &c.PriceCents, &c.Currency, &c.IsPublished, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return c, nil
}

// Enroll records an enrollment once. A redelivered checkout session or an
// existing (course, user) enrollment leaves the table untouched and loads the
// stored row into e.
func (s *PostgresStore) Enroll(ctx context.Context, e *Enrollment) (bool, error) {
	if e.Source == "" {
		e.Source = SourceFree
	}

	var session sql.NullString
	if e.StripeCheckoutSessionID != "" {
		session = sql.NullString{String: e.StripeCheckoutSessionID, Valid: true}
	}

	query := `
		INSERT INTO enrollments (org_id, course_id, user_id, source, stripe_checkout_session_id,
			amount_paid_cents, platform_fee_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, e.OrgID, e.CourseID, e.UserID, e.Source, session,
		e.AmountPaidCents, e.PlatformFeeCents).Scan(&e.ID, &e.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to create enrollment: %w", err)
	}

	existing, err := s.findExisting(ctx, e.CourseID, e.UserID.String(), session)
	if err != nil {
		return false, err
	}
	*e = *existing
	return false, nil
}

func (s *PostgresStore) findExisting(ctx context.Context, courseID int64, userID string, session sql.NullString) (*Enrollment, error) {
	query := `
		SELECT id, org_id, course_id, user_id, source, COALESCE(stripe_checkout_session_id, ''),
			amount_paid_cents, platform_fee_cents, created_at
		FROM enrollments
		WHERE stripe_checkout_session_id = $1 OR (course_id = $2 AND user_id = $3)
		ORDER BY (stripe_checkout_session_id = $1) DESC NULLS LAST
		LIMIT 1
	`
	e, err := scanEnrollment(s.db.QueryRowContext(ctx, query, session, courseID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing enrollment: %w", err)
	}
	return e, nil
}

// ListEnrollments returns an organization's enrollments, newest first
func (s *PostgresStore) ListEnrollments(ctx context.Context, orgID int64) ([]*Enrollment, error) {
	query := `
		SELECT id, org_id, course_id, user_id, source, COALESCE(stripe_checkout_session_id, ''),
			amount_paid_cents, platform_fee_cents, created_at
		FROM enrollments
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnrollment(row rowScanner) (*Enrollment, error) {
	e := &Enrollment{}
	err := row.Scan(&e.ID, &e.OrgID, &e.CourseID, &e.UserID, &e.Source, &e.StripeCheckoutSessionID,
		&e.AmountPaidCents, &e.PlatformFeeCents, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}
