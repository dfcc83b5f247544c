// Package api provides the HTTP REST API of the academy billing backend.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific handler
// groups, each with a RegisterRoutes method:
//
//   - OrgHandlers: create, read and update organizations
//   - BillingHandlers: live usage estimates, bandwidth ingestion, invoices
//     and the invoice lifecycle
//   - PricingHandlers: versioned pricing configs
//   - ConnectHandlers: payout onboarding and course checkout
//
// Server mounts the groups behind bearer authentication and rate limiting.
// Stripe webhooks are registered as public routes; they authenticate with
// the payload signature instead.
//
//	srv := api.NewServer(api.Options{
//		Logger:        logger,
//		Metrics:       metrics,
//		Registry:      registry,
//		Health:        health,
//		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.ServiceToken),
//		Public:        []api.RouteRegistrar{webhooks.NewHandlers(receiver)},
//		Routes: []api.RouteRegistrar{
//			api.NewOrgHandlers(orgService),
//			api.NewBillingHandlers(invoices, recorder, orgService),
//			api.NewPricingHandlers(pricingStore),
//			api.NewConnectHandlers(connectService, orgService),
//		},
//	})
//
// # Access
//
// Routes under /orgs/{id} load the organization and the caller's membership
// first. Non-members get 403 and unknown organizations 404. Usage, invoices
// and organization updates require the owner or admin role; Connect
// onboarding requires the owner. Platform admins pass every organization
// check. Invoice generation, lifecycle actions and pricing are platform
// admin only. Bandwidth ingestion also accepts the static service token.
//
// # Errors
//
// Error bodies are {"error": "..."}. Illegal invoice transitions and
// duplicate invoices return 409, courses that cannot be bought 422, and
// Stripe failures 502.
package api
