// Package postgres implements store.Store on PostgreSQL via pgx. The
// ordering guard runs inside single statements, so per-principal
// atomicity holds across concurrent writers without advisory locks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and returns a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("turnstile/postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.pool); err != nil {
		return fmt.Errorf("%w: %v", turnstile.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ──────────────────────────────────────────────────
// Principals
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO turnstile_principals (id, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`,
		p.ID.String(), p.Email, p.PasswordHash, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return turnstile.ErrPrincipalExists
		}
		return fmt.Errorf("turnstile/postgres: create principal: %w", err)
	}
	return nil
}

func (s *Store) GetPrincipal(ctx context.Context, principalID id.PrincipalID) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at, updated_at
FROM turnstile_principals WHERE id = $1`,
		principalID.String(),
	)
	return scanPrincipal(row)
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at, updated_at
FROM turnstile_principals WHERE email = $1`,
		email,
	)
	return scanPrincipal(row)
}

func scanPrincipal(row pgx.Row) (*principal.Principal, error) {
	var (
		p         principal.Principal
		rawID     string
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&rawID, &p.Email, &p.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, turnstile.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("turnstile/postgres: scan principal: %w", err)
	}

	p.ID, err = id.ParsePrincipalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("turnstile/postgres: stored principal id %q: %w", rawID, err)
	}
	p.Entity = types.Entity{
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	return &p, nil
}

// ──────────────────────────────────────────────────
// Subscription ledger
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(ctx context.Context, principalID id.PrincipalID) (*subscription.Record, error) {
	row := s.pool.QueryRow(ctx, `
SELECT principal_id, provider_subscription_id, provider_customer_id, status,
       current_period_start, current_period_end, last_updated_at, last_event_id,
       created_at, updated_at
FROM turnstile_subscriptions WHERE principal_id = $1`,
		principalID.String(),
	)

	var (
		rec       subscription.Record
		rawID     string
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&rawID, &rec.ProviderSubscriptionID, &rec.ProviderCustomerID, &rec.Status,
		&rec.CurrentPeriodStart, &rec.CurrentPeriodEnd, &rec.LastUpdatedAt, &rec.LastEventID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, turnstile.ErrNoSubscription
		}
		return nil, fmt.Errorf("turnstile/postgres: scan subscription: %w", err)
	}

	rec.PrincipalID, err = id.ParsePrincipalID(rawID)
	if err != nil {
		return nil, fmt.Errorf("turnstile/postgres: stored principal id %q: %w", rawID, err)
	}
	rec.CurrentPeriodStart = rec.CurrentPeriodStart.UTC()
	rec.CurrentPeriodEnd = rec.CurrentPeriodEnd.UTC()
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC()
	rec.Entity = types.Entity{
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	return &rec, nil
}

// UpsertSubscription applies the record iff it supersedes the stored
// ordering key. The guard lives in the ON CONFLICT predicate, so the
// compare-and-set is a single atomic statement.
func (s *Store) UpsertSubscription(ctx context.Context, rec *subscription.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO turnstile_subscriptions (
    principal_id, provider_subscription_id, provider_customer_id, status,
    current_period_start, current_period_end, last_updated_at, last_event_id,
    created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (principal_id) DO UPDATE SET
    provider_subscription_id = EXCLUDED.provider_subscription_id,
    provider_customer_id     = EXCLUDED.provider_customer_id,
    status                   = EXCLUDED.status,
    current_period_start     = EXCLUDED.current_period_start,
    current_period_end       = EXCLUDED.current_period_end,
    last_updated_at          = EXCLUDED.last_updated_at,
    last_event_id            = EXCLUDED.last_event_id,
    updated_at               = EXCLUDED.updated_at
WHERE EXCLUDED.last_updated_at > turnstile_subscriptions.last_updated_at
   OR (EXCLUDED.last_updated_at = turnstile_subscriptions.last_updated_at
       AND EXCLUDED.last_event_id > turnstile_subscriptions.last_event_id)`,
		rec.PrincipalID.String(), rec.ProviderSubscriptionID, rec.ProviderCustomerID, string(rec.Status),
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.LastUpdatedAt, rec.LastEventID,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("turnstile/postgres: upsert subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelSubscription marks the record canceled with the deletion's
// ordering key iff (occurredAt, eventID) supersedes or equals the stored
// one; an absent record gets a bare canceled tombstone. The row keeps
// the deletion's key so an older create delivered later loses the
// upsert guard instead of resurrecting the subscription.
func (s *Store) CancelSubscription(ctx context.Context, principalID id.PrincipalID, occurredAt time.Time, eventID string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO turnstile_subscriptions (
    principal_id, provider_subscription_id, provider_customer_id, status,
    current_period_start, current_period_end, last_updated_at, last_event_id,
    created_at, updated_at
) VALUES ($1, '', '', $2, 'epoch'::timestamptz, 'epoch'::timestamptz, $3, $4, $5, $5)
ON CONFLICT (principal_id) DO UPDATE SET
    status          = EXCLUDED.status,
    last_updated_at = EXCLUDED.last_updated_at,
    last_event_id   = EXCLUDED.last_event_id,
    updated_at      = EXCLUDED.updated_at
WHERE EXCLUDED.last_updated_at > turnstile_subscriptions.last_updated_at
   OR (EXCLUDED.last_updated_at = turnstile_subscriptions.last_updated_at
       AND EXCLUDED.last_event_id >= turnstile_subscriptions.last_event_id)`,
		principalID.String(), string(subscription.StatusCanceled), occurredAt, eventID, now,
	)
	if err != nil {
		return false, fmt.Errorf("turnstile/postgres: cancel subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ──────────────────────────────────────────────────
// Event dedup
// ──────────────────────────────────────────────────

func (s *Store) EventApplied(ctx context.Context, eventID string) (bool, error) {
	var applied bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM turnstile_applied_events WHERE event_id = $1)`, eventID,
	).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("turnstile/postgres: check applied event: %w", err)
	}
	return applied, nil
}

func (s *Store) MarkEventApplied(ctx context.Context, eventID string, appliedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO turnstile_applied_events (event_id, applied_at) VALUES ($1, $2)
ON CONFLICT (event_id) DO NOTHING`,
		eventID, appliedAt,
	)
	if err != nil {
		return fmt.Errorf("turnstile/postgres: mark event applied: %w", err)
	}
	return nil
}

func (s *Store) PurgeEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM turnstile_applied_events WHERE applied_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("turnstile/postgres: purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
