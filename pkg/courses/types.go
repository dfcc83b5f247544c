package courses

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCourseNotFound is returned when no course matches
	ErrCourseNotFound = errors.New("course not found")
)

// EnrollmentSource records how a learner was enrolled
type EnrollmentSource string

const (
	SourcePurchase EnrollmentSource = "purchase"
	SourceFree     EnrollmentSource = "free"
	SourceAdmin    EnrollmentSource = "admin"
)

// Course is a sellable unit of content owned by an organization
type Course struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	Title       string    `json:"title"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsFree reports whether the course can be joined without payment
func (c *Course) IsFree() bool {
	return c.PriceCents <= 0
}

// Enrollment is a learner's access to a course
type Enrollment struct {
	ID                      int64            `json:"id"`
	OrgID                   int64            `json:"org_id"`
	CourseID                int64            `json:"course_id"`
	UserID                  uuid.UUID        `json:"user_id"`
	Source                  EnrollmentSource `json:"source"`
	StripeCheckoutSessionID string           `json:"stripe_checkout_session_id,omitempty"`
	AmountPaidCents         int64            `json:"amount_paid_cents"`
	PlatformFeeCents        int64            `json:"platform_fee_cents"`
	CreatedAt               time.Time        `json:"created_at"`
}

// Store reads courses and records enrollments
type Store interface {
	GetCourse(ctx context.Context, id int64) (*Course, error)
	// Enroll inserts e unless the checkout session or the (course, user) pair
	// is already enrolled. created is false for the duplicate case.
	Enroll(ctx context.Context, e *Enrollment) (created bool, err error)
	ListEnrollments(ctx context.Context, orgID int64) ([]*Enrollment, error)
}
