// Package migrations embeds the SQL schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

//go:embed *.sql
var files embed.FS

// InitUp returns the initial schema script.
func InitUp() (string, error) {
	b, err := files.ReadFile("000001_init.up.sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Up applies the schema. Every statement is idempotent, so running it
// against an already migrated database is a no-op.
func Up(ctx context.Context, db *sql.DB) error {
	script, err := InitUp()
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
