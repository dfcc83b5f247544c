package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/audit"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/middleware"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// orgIDParam is the route variable naming the organization
const orgIDParam = "id"

// orgRoute runs h with the organization in {id} loaded and the caller's
// membership checked, then applies gates in order.
func orgRoute(orgService orgs.Service, h http.HandlerFunc, gates ...func(http.Handler) http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{middleware.OrgContext(orgService, orgIDParam)}
	chain = append(chain, gates...)
	return httputil.Chain(chain...)(h)
}

// OrgHandlers handles organization-related HTTP requests
type OrgHandlers struct {
	orgService orgs.Service
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService orgs.Service) *OrgHandlers {
	return &OrgHandlers{
		orgService: orgService,
	}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/orgs", middleware.RequireUser(http.HandlerFunc(h.CreateOrganization))).Methods("POST")
	router.Handle("/orgs/{id}", orgRoute(h.orgService, h.GetOrganization)).Methods("GET")
	router.Handle("/orgs/{id}", orgRoute(h.orgService, h.UpdateOrganization, middleware.RequireBillingManager())).Methods("PATCH")
}

// CreateOrganization creates a new organization owned by the caller
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)

	var req orgs.CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	org := &orgs.Organization{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Subdomain:    req.Subdomain,
		BillingEmail: req.BillingEmail,
		Branding:     req.Branding,
	}
	if org.BillingEmail == "" {
		org.BillingEmail = principal.Email
	}

	if err := h.orgService.CreateOrganization(r.Context(), org, principal.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r, audit.Entry{
		EventType:    audit.EventTypeOrgCreated,
		OrgID:        org.ID,
		ResourceType: audit.ResourceTypeOrganization,
		ResourceID:   org.ID,
		Metadata:     map[string]interface{}{"slug": org.Slug},
	})

	httputil.WriteCreated(w, org)
}

// GetOrganization returns the organization loaded for the route
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.GetOrganization(r))
}

// UpdateOrganization applies a partial update and returns the updated organization
func (h *OrgHandlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)

	var req orgs.UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgService.UpdateOrganization(r.Context(), org.ID, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	updated, err := h.orgService.GetOrganization(r.Context(), org.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r, audit.Entry{
		EventType:    audit.EventTypeOrgUpdated,
		OrgID:        org.ID,
		ResourceType: audit.ResourceTypeOrganization,
		ResourceID:   org.ID,
		Changes:      orgChanges(org, updated),
	})
	httputil.WriteSuccess(w, updated)
}

// orgChanges lists the billing relevant fields that differ between before and after
func orgChanges(before, after *orgs.Organization) *audit.ChangeDetails {
	changes := &audit.ChangeDetails{Before: map[string]interface{}{}, After: map[string]interface{}{}}
	if before.DisplayName != after.DisplayName {
		changes.Before["display_name"] = before.DisplayName
		changes.After["display_name"] = after.DisplayName
	}
	if before.BillingEmail != after.BillingEmail {
		changes.Before["billing_email"] = before.BillingEmail
		changes.After["billing_email"] = after.BillingEmail
	}
	if len(changes.After) == 0 {
		return nil
	}
	return changes
}
