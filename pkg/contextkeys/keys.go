// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that
// producers and consumers agree on both the key and the stored type.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/academy/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.AuthKey, principal)
//	principal := ctx.Value(contextkeys.AuthKey).(*middleware.Principal)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *middleware.Principal
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: All protected API endpoints
	AuthKey Key = "auth_principal"

	// OrgKey contains *orgs.Organization
	// Set by: middleware.OrgContext (pkg/middleware/org.go)
	// Required by: Org-scoped billing and connect endpoints
	OrgKey Key = "organization"

	// OrgRoleKey contains orgs.Role of the caller within OrgKey
	// Set by: middleware.OrgContext
	OrgRoleKey Key = "org_role"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, Sentry scope
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user id string
	// Set by: middleware.Authenticator
	// Used by: Logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger
	// Set by: audit.Middleware
	// Used by: audit.Record in handlers that change billing state
	AuditLoggerKey Key = "audit_logger"
)
