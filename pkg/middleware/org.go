package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/academy/pkg/contextkeys"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/observability"
	"github.com/platinummonkey/academy/pkg/orgs"
)

// ErrForbidden is returned when the caller may not act on an organization
var ErrForbidden = errors.New("forbidden")

// OrgContext loads the organization named by the route variable param and
// the caller's role in it. Platform admins need no membership.
func OrgContext(orgService orgs.Service, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgIDStr, ok := mux.Vars(r)[param]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "invalid organization ID")
				return
			}

			org, err := orgService.GetOrganization(r.Context(), orgID)
			if errors.Is(err, orgs.ErrOrgNotFound) {
				httputil.WriteNotFoundError(w, "organization not found")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to load organization")
				httputil.WriteInternalError(w, errors.New("failed to load organization"))
				return
			}

			role, err := callerRole(r.Context(), orgService, org.ID)
			if errors.Is(err, ErrForbidden) {
				httputil.WriteForbidden(w, "not a member of this organization")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to load membership")
				httputil.WriteInternalError(w, errors.New("failed to load membership"))
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.OrgKey, org)
			ctx = context.WithValue(ctx, contextkeys.OrgRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrgRole admits platform admins and members whose role satisfies allowed.
// It must run after OrgContext.
func RequireOrgRole(allowed func(orgs.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r)
			if p == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if p.PlatformAdmin {
				next.ServeHTTP(w, r)
				return
			}
			role, ok := GetOrgRole(r)
			if !ok || !allowed(role) {
				httputil.WriteForbidden(w, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBillingManager admits org owners and admins
func RequireBillingManager() func(http.Handler) http.Handler {
	return RequireOrgRole(orgs.Role.CanManageBilling)
}

// RequireOrgOwner admits org owners only
func RequireOrgOwner() func(http.Handler) http.Handler {
	return RequireOrgRole(func(r orgs.Role) bool { return r == orgs.RoleOwner })
}

// Authorize checks that the caller in ctx may act on orgID with a role satisfying allowed.
// It serves handlers whose organization is only known after loading a resource.
func Authorize(ctx context.Context, orgService orgs.Service, orgID int64, allowed func(orgs.Role) bool) error {
	p := PrincipalFromContext(ctx)
	if p == nil {
		return ErrForbidden
	}
	if p.PlatformAdmin {
		return nil
	}
	role, err := callerRole(ctx, orgService, orgID)
	if err != nil {
		return err
	}
	if !allowed(role) {
		return ErrForbidden
	}
	return nil
}

// GetOrganization returns the organization loaded by OrgContext
func GetOrganization(r *http.Request) *orgs.Organization {
	org, _ := r.Context().Value(contextkeys.OrgKey).(*orgs.Organization)
	return org
}

// GetOrgRole returns the caller's role loaded by OrgContext
func GetOrgRole(r *http.Request) (orgs.Role, bool) {
	role, ok := r.Context().Value(contextkeys.OrgRoleKey).(orgs.Role)
	return role, ok && role != ""
}

// callerRole returns the member role of the principal in ctx; platform admins get an empty role
func callerRole(ctx context.Context, orgService orgs.Service, orgID int64) (orgs.Role, error) {
	p := PrincipalFromContext(ctx)
	if p == nil || p.Service {
		return "", ErrForbidden
	}
	if p.PlatformAdmin {
		return "", nil
	}
	role, err := orgService.GetMemberRole(ctx, orgID, p.UserID)
	if errors.Is(err, orgs.ErrMemberNotFound) {
		return "", ErrForbidden
	}
	return role, err
}
