package database

import (
	"context"
	"fmt"
)

// CredentialKey is the fixed primary key of the single credential row.
const CredentialKey = "broker"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS quotes (
		symbol     TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id          TEXT PRIMARY KEY,
		token       TEXT NOT NULL,
		account_id  TEXT NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the relay's tables when missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
