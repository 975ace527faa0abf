package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Versions are applied in order
// and recorded in turnstile_migrations so reruns are no-ops.
type migration struct {
	Version int
	Name    string
	Up      string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_principals",
		Up: `
CREATE TABLE IF NOT EXISTS turnstile_principals (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash BLOB NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_turnstile_principals_email ON turnstile_principals (email);
`,
	},
	{
		Version: 2,
		Name:    "create_subscriptions",
		Up: `
CREATE TABLE IF NOT EXISTS turnstile_subscriptions (
    principal_id             TEXT PRIMARY KEY,
    provider_subscription_id TEXT NOT NULL DEFAULT '',
    provider_customer_id     TEXT NOT NULL DEFAULT '',
    status                   TEXT NOT NULL,
    current_period_start     INTEGER NOT NULL,
    current_period_end       INTEGER NOT NULL,
    last_updated_at          INTEGER NOT NULL,
    last_event_id            TEXT NOT NULL DEFAULT '',
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turnstile_subs_provider ON turnstile_subscriptions (provider_subscription_id);
`,
	},
	{
		Version: 3,
		Name:    "create_applied_events",
		Up: `
CREATE TABLE IF NOT EXISTS turnstile_applied_events (
    event_id   TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turnstile_applied_events_at ON turnstile_applied_events (applied_at);
`,
	},
}

// runMigrations applies all pending migrations inside transactions.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS turnstile_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM turnstile_migrations WHERE version = ?`, m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			tx.Rollback() //nolint:errcheck // rollback failure is secondary
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turnstile_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s','now'))`,
			m.Version, m.Name,
		); err != nil {
			tx.Rollback() //nolint:errcheck // rollback failure is secondary
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
