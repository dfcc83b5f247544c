// Package orgstest provides an in-memory orgs.Service for tests.
package orgstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/academy/pkg/orgs"
)

// Memory is a goroutine-safe in-memory orgs.Service
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	orgs    map[int64]*orgs.Organization
	members map[int64]map[uuid.UUID]orgs.Role
}

var _ orgs.Service = (*Memory)(nil)

// New returns a Memory seeded with list
func New(list ...*orgs.Organization) *Memory {
	m := &Memory{orgs: map[int64]*orgs.Organization{}, members: map[int64]map[uuid.UUID]orgs.Role{}}
	for _, o := range list {
		m.put(o)
	}
	return m
}

// Active returns an active organization with the given id
func Active(id int64) *orgs.Organization {
	return &orgs.Organization{ID: id, Name: "org", Slug: "org", DisplayName: "Org", Status: orgs.OrgStatusActive}
}

func (m *Memory) put(o *orgs.Organization) {
	copied := *o
	m.orgs[o.ID] = &copied
	if o.ID > m.nextID {
		m.nextID = o.ID
	}
}

func (m *Memory) CreateOrganization(ctx context.Context, org *orgs.Organization, owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == org.Slug {
			return orgs.ErrSlugTaken
		}
	}
	m.nextID++
	org.ID = m.nextID
	if org.Status == "" {
		org.Status = orgs.OrgStatusActive
	}
	org.CreatedAt, org.UpdatedAt = time.Now(), time.Now()
	m.put(org)
	m.members[org.ID] = map[uuid.UUID]orgs.Role{owner: orgs.RoleOwner}
	return nil
}

func (m *Memory) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, orgs.ErrOrgNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *Memory) GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == slug {
			copied := *o
			return &copied, nil
		}
	}
	return nil, orgs.ErrOrgNotFound
}

func (m *Memory) UpdateOrganization(ctx context.Context, id int64, updates *orgs.UpdateOrgRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return orgs.ErrOrgNotFound
	}
	if updates.DisplayName != nil {
		o.DisplayName = *updates.DisplayName
	}
	if updates.BillingEmail != nil {
		o.BillingEmail = *updates.BillingEmail
	}
	if updates.Branding != nil {
		o.Branding = updates.Branding
	}
	return nil
}

func (m *Memory) ListActiveOrganizations(ctx context.Context) ([]*orgs.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*orgs.Organization
	for _, o := range m.orgs {
		if o.Status == orgs.OrgStatusActive {
			copied := *o
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddMember(ctx context.Context, orgID int64, userID uuid.UUID, role orgs.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[orgID]; !ok {
		return orgs.ErrOrgNotFound
	}
	if m.members[orgID] == nil {
		m.members[orgID] = map[uuid.UUID]orgs.Role{}
	}
	m.members[orgID][userID] = role
	return nil
}

func (m *Memory) GetMemberRole(ctx context.Context, orgID int64, userID uuid.UUID) (orgs.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.members[orgID][userID]
	if !ok {
		return "", orgs.ErrMemberNotFound
	}
	return role, nil
}

func (m *Memory) SetStripeCustomer(ctx context.Context, orgID int64, customerID string) error {
	return m.update(orgID, func(o *orgs.Organization) { o.StripeCustomerID = customerID })
}

func (m *Memory) SetStripeAccount(ctx context.Context, orgID int64, accountID string) error {
	return m.update(orgID, func(o *orgs.Organization) {
		o.StripeAccountID = accountID
		o.StripeOnboarded = false
	})
}

func (m *Memory) SetOnboardedByAccount(ctx context.Context, accountID string, onboarded bool) (*orgs.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if accountID != "" && o.StripeAccountID == accountID {
			o.StripeOnboarded = onboarded
			copied := *o
			return &copied, nil
		}
	}
	return nil, orgs.ErrOrgNotFound
}

func (m *Memory) update(orgID int64, fn func(*orgs.Organization)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[orgID]
	if !ok {
		return orgs.ErrOrgNotFound
	}
	fn(o)
	return nil
}
