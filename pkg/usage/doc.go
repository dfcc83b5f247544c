// Package usage meters what an organization consumes during a billing period.
//
// A Snapshot holds the four billed dimensions (active students, stored video
// bytes, streamed video bytes and certificates issued). Snapshots are computed
// by the get_org_usage database function and are never stored as entities.
//
// Two read paths exist. Aggregator.Snapshot returns RPC failures to the
// caller and is used when generating invoices. SafeSnapshot substitutes an
// all-zero snapshot on failure and is used for estimates shown to tenants.
package usage
