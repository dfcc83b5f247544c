// Package middleware provides HTTP middleware for authentication, organization
// authorization and rate limiting.
//
// # Authentication
//
// Authenticator verifies Supabase access tokens (HS256 JWTs signed with the
// project secret) and the static metering service token:
//
//	authn := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.ServiceToken)
//	router.Use(authn.Handler)
//
// The token subject is the user id. app_metadata.role == "platform_admin"
// marks a platform administrator.
//
// # Organization Context
//
// OrgContext loads the organization in the route and the caller's membership
// role; RequireOrgRole, RequireBillingManager and RequireOrgOwner gate on it:
//
//	orgRouter.Use(middleware.OrgContext(orgService, "id"), middleware.RequireBillingManager())
//
// # Rate Limiting
//
// Users: 1000 req/min, 50 burst
// Service token: 5000 req/min, 100 burst
// Anonymous: 100 req/min, 10 burst
//
// NewDistributedRateLimitMiddleware shares the counters through Redis.
//
// # Related Packages
//
//   - pkg/orgs: membership roles
package middleware
