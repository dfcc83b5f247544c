// Package storage holds connection settings shared by the persistence
// backends. The backends themselves live in the postgres subpackage:
//
//   - PostgreSQL (lib/pq) for organizations, pricing, invoices and the webhook ledger
//   - Redis for short-lived usage snapshot caching
//   - S3-compatible object storage for the invoice archive
//
// The schema, including the get_org_usage aggregation function, is
// embedded in the postgres package and applied by postgres.Migrate.
package storage
