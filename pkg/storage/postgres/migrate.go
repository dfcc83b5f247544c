package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded DDL applied by Migrate
func Schema() string {
	return schemaSQL
}

// Migrate applies the embedded schema. Statements are idempotent, so it is safe on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	// lib/pq sends argument-less Exec over the simple query protocol, which accepts multiple statements
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
