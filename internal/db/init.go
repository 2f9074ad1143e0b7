// Package db opens the attempt history database and keeps it within its
// retention window.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    action TEXT NOT NULL,
    outcome TEXT NOT NULL,
    step TEXT NOT NULL,
    online_ip TEXT,
    ac_id TEXT,
    portal_error TEXT,
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS attempts_started_at_idx ON attempts (started_at DESC);
`

// InitPostgres connects to dsn and creates the attempts table if needed.
// The connection is closed again when any step fails.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate creates the attempts table and its index on conn. It is safe to
// run against an existing database.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
