// Package audit records who changed billing state and when.
//
// # Overview
//
// Every manual action on money goes through the audit trail: invoice
// generation and lifecycle transitions, pricing config changes, organization
// updates and Connect onboarding. Webhook driven transitions are already
// recorded in the webhook event ledger and are not duplicated here.
//
// # Recording
//
// The API server installs a Logger with Middleware. Handlers then call
// Record with the request, so the actor, request id, method and path are
// filled in from the authenticated principal and request context:
//
//	audit.Record(r, audit.Entry{
//		EventType:    audit.EventTypeInvoiceVoided,
//		OrgID:        inv.OrgID,
//		ResourceType: audit.ResourceTypeInvoice,
//		ResourceID:   inv.ID,
//		Err:          err,
//	})
//
// A failing audit write is logged and does not fail the request.
//
// # Querying
//
//	GET /orgs/{id}/audit   billing managers of the organization
//	GET /audit             platform admins, optionally ?organization_id=
//
// Both accept start_time, end_time (RFC3339), event_types (comma separated),
// resource_type, resource_id, limit and offset. format=csv|ndjson|json
// returns a download instead of the paginated JSON envelope.
package audit
