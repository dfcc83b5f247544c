// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every error body has the shape {"error": "..."}:
//
//	httputil.WriteSuccess(w, invoice)
//	httputil.WriteCreated(w, org)
//	httputil.WriteNotFoundError(w, "invoice not found")
//	httputil.WriteConflict(w, "invoice already exists for period")
//
// # Request Parsing
//
//	var req orgs.CreateOrgRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	orgID, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// RequestIDMiddleware must run before LoggingMiddleware so request logs carry
// the request_id field.
//
// # Related Packages
//
//   - pkg/middleware: Authentication, organization access and rate limiting
package httputil
