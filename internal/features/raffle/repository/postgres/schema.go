package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the raffle tables. Safe to call on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS raffle_state (
    id TEXT PRIMARY KEY,
    payload JSONB NOT NULL,
    ts BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS raffle_snapshots (
    id TEXT PRIMARY KEY,
    payload JSONB NOT NULL,
    ts BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raffle_snapshots_created_at ON raffle_snapshots(created_at DESC);
`
