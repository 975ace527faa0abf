package store

import (
	"context"
	"time"

	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/subscription"
)

// Store is the unified storage interface for all Turnstile entities.
// Instead of embedding the sub-interfaces, we explicitly declare all
// methods to avoid naming conflicts.
type Store interface {
	// Principal methods
	CreatePrincipal(ctx context.Context, p *principal.Principal) error
	GetPrincipal(ctx context.Context, principalID id.PrincipalID) (*principal.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*principal.Principal, error)

	// Subscription ledger methods. Upsert applies the record iff its
	// (LastUpdatedAt, LastEventID) supersedes the stored ordering key.
	// Cancel marks the record canceled with the deletion's ordering key
	// iff (occurredAt, eventID) supersedes or equals it, writing a bare
	// canceled tombstone when no record exists; the key must survive the
	// deletion or an older create delivered later would resurrect the
	// subscription. Both are single-record atomic per principal.
	GetSubscription(ctx context.Context, principalID id.PrincipalID) (*subscription.Record, error)
	UpsertSubscription(ctx context.Context, rec *subscription.Record) (applied bool, err error)
	CancelSubscription(ctx context.Context, principalID id.PrincipalID, occurredAt time.Time, eventID string) (canceled bool, err error)

	// Event dedup methods. MarkEventApplied records a provider event ID
	// after it has been applied so redeliveries become silent no-ops.
	EventApplied(ctx context.Context, eventID string) (bool, error)
	MarkEventApplied(ctx context.Context, eventID string, appliedAt time.Time) error
	PurgeEvents(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
