package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
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
    password_hash BYTEA NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
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
    current_period_start     TIMESTAMPTZ NOT NULL,
    current_period_end       TIMESTAMPTZ NOT NULL,
    last_updated_at          TIMESTAMPTZ NOT NULL,
    last_event_id            TEXT NOT NULL DEFAULT '',
    created_at               TIMESTAMPTZ NOT NULL,
    updated_at               TIMESTAMPTZ NOT NULL
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
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turnstile_applied_events_at ON turnstile_applied_events (applied_at);
`,
	},
}

// runMigrations applies all pending migrations inside transactions.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS turnstile_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM turnstile_migrations WHERE version = $1`, m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			tx.Rollback(ctx) //nolint:errcheck // rollback failure is secondary
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO turnstile_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name,
		); err != nil {
			tx.Rollback(ctx) //nolint:errcheck // rollback failure is secondary
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
