// Package sqlite implements store.Store on SQLite via database/sql and
// mattn/go-sqlite3. Suited to single-node deployments; the ordering
// guard runs inside single statements so per-principal atomicity holds
// without explicit locking.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and returns a Store. Foreign
// keys and a busy timeout are enabled through the DSN.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=1&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("turnstile/sqlite: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids BUSY churn.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", turnstile.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Principals
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO turnstile_principals (id, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.Email, p.PasswordHash, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return turnstile.ErrPrincipalExists
		}
		return fmt.Errorf("turnstile/sqlite: create principal: %w", err)
	}
	return nil
}

func (s *Store) GetPrincipal(ctx context.Context, principalID id.PrincipalID) (*principal.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at, updated_at
FROM turnstile_principals WHERE id = ?`,
		principalID.String(),
	)
	return scanPrincipal(row)
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at, updated_at
FROM turnstile_principals WHERE email = ?`,
		email,
	)
	return scanPrincipal(row)
}

func scanPrincipal(row *sql.Row) (*principal.Principal, error) {
	var (
		p         principal.Principal
		rawID     string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&rawID, &p.Email, &p.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, turnstile.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("turnstile/sqlite: scan principal: %w", err)
	}

	p.ID, err = id.ParsePrincipalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("turnstile/sqlite: stored principal id %q: %w", rawID, err)
	}
	p.Entity = types.Entity{
		CreatedAt: fromNanos(createdAt),
		UpdatedAt: fromNanos(updatedAt),
	}
	return &p, nil
}

// ──────────────────────────────────────────────────
// Subscription ledger
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(ctx context.Context, principalID id.PrincipalID) (*subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT principal_id, provider_subscription_id, provider_customer_id, status,
       current_period_start, current_period_end, last_updated_at, last_event_id,
       created_at, updated_at
FROM turnstile_subscriptions WHERE principal_id = ?`,
		principalID.String(),
	)

	var (
		rec         subscription.Record
		rawID       string
		periodStart int64
		periodEnd   int64
		lastUpdated int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&rawID, &rec.ProviderSubscriptionID, &rec.ProviderCustomerID, &rec.Status,
		&periodStart, &periodEnd, &lastUpdated, &rec.LastEventID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, turnstile.ErrNoSubscription
		}
		return nil, fmt.Errorf("turnstile/sqlite: scan subscription: %w", err)
	}

	rec.PrincipalID, err = id.ParsePrincipalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("turnstile/sqlite: stored principal id %q: %w", rawID, err)
	}
	rec.CurrentPeriodStart = fromNanos(periodStart)
	rec.CurrentPeriodEnd = fromNanos(periodEnd)
	rec.LastUpdatedAt = fromNanos(lastUpdated)
	rec.Entity = types.Entity{
		CreatedAt: fromNanos(createdAt),
		UpdatedAt: fromNanos(updatedAt),
	}
	return &rec, nil
}

// UpsertSubscription applies the record iff it supersedes the stored
// ordering key. The guard lives in the ON CONFLICT predicate, so the
// compare-and-set is a single atomic statement.
func (s *Store) UpsertSubscription(ctx context.Context, rec *subscription.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO turnstile_subscriptions (
    principal_id, provider_subscription_id, provider_customer_id, status,
    current_period_start, current_period_end, last_updated_at, last_event_id,
    created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (principal_id) DO UPDATE SET
    provider_subscription_id = excluded.provider_subscription_id,
    provider_customer_id     = excluded.provider_customer_id,
    status                   = excluded.status,
    current_period_start     = excluded.current_period_start,
    current_period_end       = excluded.current_period_end,
    last_updated_at          = excluded.last_updated_at,
    last_event_id            = excluded.last_event_id,
    updated_at               = excluded.updated_at
WHERE excluded.last_updated_at > turnstile_subscriptions.last_updated_at
   OR (excluded.last_updated_at = turnstile_subscriptions.last_updated_at
       AND excluded.last_event_id > turnstile_subscriptions.last_event_id)`,
		rec.PrincipalID.String(), rec.ProviderSubscriptionID, rec.ProviderCustomerID, string(rec.Status),
		rec.CurrentPeriodStart.UnixNano(), rec.CurrentPeriodEnd.UnixNano(),
		rec.LastUpdatedAt.UnixNano(), rec.LastEventID,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("turnstile/sqlite: upsert subscription: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("turnstile/sqlite: upsert subscription: %w", err)
	}
	return rows > 0, nil
}

// CancelSubscription marks the record canceled with the deletion's
// ordering key iff (occurredAt, eventID) supersedes or equals the stored
// one; an absent record gets a bare canceled tombstone. The row keeps
// the deletion's key so an older create delivered later loses the
// upsert guard instead of resurrecting the subscription.
func (s *Store) CancelSubscription(ctx context.Context, principalID id.PrincipalID, occurredAt time.Time, eventID string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO turnstile_subscriptions (
    principal_id, provider_subscription_id, provider_customer_id, status,
    current_period_start, current_period_end, last_updated_at, last_event_id,
    created_at, updated_at
) VALUES (?, '', '', ?, 0, 0, ?, ?, ?, ?)
ON CONFLICT (principal_id) DO UPDATE SET
    status          = excluded.status,
    last_updated_at = excluded.last_updated_at,
    last_event_id   = excluded.last_event_id,
    updated_at      = excluded.updated_at
WHERE excluded.last_updated_at > turnstile_subscriptions.last_updated_at
   OR (excluded.last_updated_at = turnstile_subscriptions.last_updated_at
       AND excluded.last_event_id >= turnstile_subscriptions.last_event_id)`,
		principalID.String(), string(subscription.StatusCanceled),
		occurredAt.UnixNano(), eventID, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("turnstile/sqlite: cancel subscription: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("turnstile/sqlite: cancel subscription: %w", err)
	}
	return rows > 0, nil
}

// ──────────────────────────────────────────────────
// Event dedup
// ──────────────────────────────────────────────────

func (s *Store) EventApplied(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turnstile_applied_events WHERE event_id = ?`, eventID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("turnstile/sqlite: check applied event: %w", err)
	}
	return count > 0, nil
}

func (s *Store) MarkEventApplied(ctx context.Context, eventID string, appliedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO turnstile_applied_events (event_id, applied_at) VALUES (?, ?)
ON CONFLICT (event_id) DO NOTHING`,
		eventID, appliedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("turnstile/sqlite: mark event applied: %w", err)
	}
	return nil
}

func (s *Store) PurgeEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM turnstile_applied_events WHERE applied_at < ?`, before.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("turnstile/sqlite: purge events: %w", err)
	}
	return res.RowsAffected()
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
