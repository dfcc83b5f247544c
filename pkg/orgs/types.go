package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOrgNotFound is returned when no organization matches
	ErrOrgNotFound = errors.New("organization not found")
	// ErrSlugTaken is returned when the slug or subdomain is already in use
	ErrSlugTaken = errors.New("organization slug already taken")
	// ErrMemberNotFound is returned when the user is not a member of the organization
	ErrMemberNotFound = errors.New("member not found")
	// ErrInvalidOrganization is returned when a new organization fails validation
	ErrInvalidOrganization = errors.New("invalid organization")
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// Role is a member's role within an organization
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleInstructor, RoleStudent:
		return true
	}
	return false
}

// CanManageBilling reports whether r may view usage and invoices
func (r Role) CanManageBilling() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Organization is a tenant
type Organization struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Slug             string         `json:"slug"`
	DisplayName      string         `json:"display_name"`
	Subdomain        *string        `json:"subdomain,omitempty"`
	Branding         map[string]any `json:"branding,omitempty"`
	BillingEmail     string         `json:"billing_email,omitempty"`
	StripeCustomerID string         `json:"stripe_customer_id,omitempty"`
	StripeAccountID  string         `json:"stripe_account_id,omitempty"`
	StripeOnboarded  bool           `json:"stripe_onboarded"`
	Status           OrgStatus      `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CanReceivePayouts reports whether course sales can be routed to the org's Connect account
func (o *Organization) CanReceivePayouts() bool {
	return o.StripeAccountID != "" && o.StripeOnboarded
}

// Member is a user's membership in an organization
type Member struct {
	OrgID     int64     `json:"org_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOrgRequest represents a request to create an organization
type CreateOrgRequest struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name,omitempty"`
	Subdomain    *string        `json:"subdomain,omitempty"`
	BillingEmail string         `json:"billing_email,omitempty"`
	Branding     map[string]any `json:"branding,omitempty"`
}

// UpdateOrgRequest represents a request to update an organization
type UpdateOrgRequest struct {
	DisplayName  *string        `json:"display_name,omitempty"`
	BillingEmail *string        `json:"billing_email,omitempty"`
	Branding     map[string]any `json:"branding,omitempty"`
}

// Service defines the interface for organization management
type Service interface {
	// Organization management
	CreateOrganization(ctx context.Context, org *Organization, owner uuid.UUID) error
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) error
	ListActiveOrganizations(ctx context.Context) ([]*Organization, error)

	// Membership
	AddMember(ctx context.Context, orgID int64, userID uuid.UUID, role Role) error
	GetMemberRole(ctx context.Context, orgID int64, userID uuid.UUID) (Role, error)

	// Stripe linkage
	SetStripeCustomer(ctx context.Context, orgID int64, customerID string) error
	SetStripeAccount(ctx context.Context, orgID int64, accountID string) error
	SetOnboardedByAccount(ctx context.Context, accountID string, onboarded bool) (*Organization, error)
}
