// Package async runs best-effort background work with panic recovery,
// per-task timeouts and structured logging.
//
//	async.SafeGo(r.Context(), 30*time.Second, "invoice archive", func(ctx context.Context) error {
//		return archiver.Archive(ctx, invoice)
//	})
//
// Tasks are detached from the caller's cancellation so that work started by
// an HTTP request outlives the response, while keeping the request's logger
// and request id.
package async
