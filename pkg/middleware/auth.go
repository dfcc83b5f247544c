package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/academy/pkg/contextkeys"
	"github.com/platinummonkey/academy/pkg/httputil"
	"github.com/platinummonkey/academy/pkg/observability"
)

// PlatformAdminRole is the app_metadata role that grants platform administration
const PlatformAdminRole = "platform_admin"

// Principal is the authenticated caller of a request
type Principal struct {
	UserID        uuid.UUID
	Email         string
	PlatformAdmin bool
	// Service is set for the static metering token; it has no user
	Service bool
}

// ID returns a stable identifier for logs and rate limit keys
func (p *Principal) ID() string {
	if p.Service {
		return "service"
	}
	return p.UserID.String()
}

// AppMetadata is the server-controlled metadata Supabase embeds in access tokens
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// Claims are the Supabase access token claims the platform reads
type Claims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
}

// Authenticator verifies bearer tokens. Supabase access tokens are HS256 JWTs
// signed with the project JWT secret.
type Authenticator struct {
	secret       []byte
	serviceToken string
	audience     string
	optional     bool
}

// NewAuthenticator creates an authenticator. An empty serviceToken disables service access.
func NewAuthenticator(jwtSecret, serviceToken string) *Authenticator {
	return &Authenticator{
		secret:       []byte(jwtSecret),
		serviceToken: serviceToken,
		audience:     "authenticated",
	}
}

// Optional returns a copy that lets unauthenticated requests through without a principal
func (a *Authenticator) Optional() *Authenticator {
	copied := *a
	copied.optional = true
	return &copied
}

// Authenticate resolves the principal of a raw bearer token
func (a *Authenticator) Authenticate(token string) (*Principal, error) {
	if a.serviceToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.serviceToken)) == 1 {
		return &Principal{Service: true}, nil
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject: %w", err)
	}

	return &Principal{
		UserID:        userID,
		Email:         claims.Email,
		PlatformAdmin: claims.AppMetadata.Role == PlatformAdminRole,
	}, nil
}

// Handler wraps an HTTP handler with authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if a.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := a.Authenticate(token)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("Rejected bearer token")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// WithPrincipal stores p in ctx and tags the request logger with the caller
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, contextkeys.AuthKey, p)
	ctx = observability.WithUserID(ctx, p.ID())
	return ctx
}

// GetPrincipal extracts the principal from the request
func GetPrincipal(r *http.Request) *Principal {
	return PrincipalFromContext(r.Context())
}

// PrincipalFromContext returns the principal stored in ctx, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextkeys.AuthKey).(*Principal)
	return p
}

// RequireUser rejects requests that are not made by a signed-in user
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		if p == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if p.Service {
			httputil.WriteForbidden(w, "user token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePlatformAdmin rejects callers that are not platform administrators
func RequirePlatformAdmin(next http.Handler) http.Handler {
	return requirePrincipal(func(p *Principal) bool { return p.PlatformAdmin }, next)
}

// RequirePlatformAdminOrService admits platform administrators and the metering service token
func RequirePlatformAdminOrService(next http.Handler) http.Handler {
	return requirePrincipal(func(p *Principal) bool { return p.PlatformAdmin || p.Service }, next)
}

func requirePrincipal(allowed func(*Principal) bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		if p == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !allowed(p) {
			httputil.WriteForbidden(w, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
