package connect

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

var (
	// ErrCourseNotPurchasable is returned for unpublished or free courses
	ErrCourseNotPurchasable = errors.New("course is not available for purchase")
	// ErrOrgMismatch is returned when a course is checked out under another org
	ErrOrgMismatch = errors.New("course belongs to a different organization")
)

// KindCoursePurchase marks checkout sessions created by CreateCourseCheckout
const KindCoursePurchase = "course_purchase"

// CheckoutRequest is a learner's request to buy a course
type CheckoutRequest struct {
	CourseID int64     `json:"course_id"`
	UserID   uuid.UUID `json:"-"`
	// OrgID, when non-zero, must match the course's org
	OrgID      int64  `json:"org_id,omitempty"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// CheckoutSession is a created Stripe Checkout session
type CheckoutSession struct {
	ID                  string `json:"id"`
	URL                 string `json:"url"`
	AmountCents         int64  `json:"amount_cents"`
	Currency            string `json:"currency"`
	ApplicationFeeCents int64  `json:"application_fee_cents"`
	Destination         string `json:"destination,omitempty"`
}

// CheckoutParams is everything the gateway needs to open a session
type CheckoutParams struct {
	CourseTitle         string
	AmountCents         int64
	Currency            string
	SuccessURL          string
	CancelURL           string
	ClientReferenceID   string
	Destination         string
	ApplicationFeeCents int64
	Metadata            map[string]string
}

// Gateway is the Stripe Connect API surface used by Service
type Gateway interface {
	CreateAccount(ctx context.Context, orgID int64, email string) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// PurchaseMetadata is carried on every course checkout session
type PurchaseMetadata struct {
	OrgID            int64
	CourseID         int64
	UserID           uuid.UUID
	PlatformFeeCents int64
}

// Map renders the metadata for a Stripe session
func (m PurchaseMetadata) Map() map[string]string {
	return map[string]string{
		"kind":               KindCoursePurchase,
		"org_id":             strconv.FormatInt(m.OrgID, 10),
		"course_id":          strconv.FormatInt(m.CourseID, 10),
		"user_id":            m.UserID.String(),
		"platform_fee_cents": strconv.FormatInt(m.PlatformFeeCents, 10),
	}
}

// ParsePurchaseMetadata reads metadata written by Map. Any missing or
// malformed field is an error.
func ParsePurchaseMetadata(md map[string]string) (PurchaseMetadata, error) {
	var m PurchaseMetadata
	if md["kind"] != KindCoursePurchase {
		return m, fmt.Errorf("unexpected kind %q", md["kind"])
	}

	var err error
	if m.OrgID, err = parsePositive(md, "org_id"); err != nil {
		return m, err
	}
	if m.CourseID, err = parsePositive(md, "course_id"); err != nil {
		return m, err
	}
	if m.UserID, err = uuid.Parse(md["user_id"]); err != nil {
		return m, fmt.Errorf("invalid user_id: %w", err)
	}
	if fee, ok := md["platform_fee_cents"]; ok && fee != "" {
		if m.PlatformFeeCents, err = strconv.ParseInt(fee, 10, 64); err != nil || m.PlatformFeeCents < 0 {
			return m, fmt.Errorf("invalid platform_fee_cents %q", fee)
		}
	}
	return m, nil
}

func parsePositive(md map[string]string, key string) (int64, error) {
	v, err := strconv.ParseInt(md[key], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, md[key])
	}
	return v, nil
}
