package subscription

import (
	"context"
	"time"

	"github.com/xraph/turnstile/id"
)

// Store is the subscription-ledger slice of the storage contract.
//
// Upsert and Cancel are single-record atomic: operations on different
// principals never block each other, and concurrent operations on the
// same principal are serialized so exactly one wins under the event
// ordering rule.
type Store interface {
	// Get returns the record for a principal, or ErrNoSubscription.
	Get(ctx context.Context, principalID id.PrincipalID) (*Record, error)

	// Upsert replaces any existing record for the principal iff the
	// incoming (LastUpdatedAt, LastEventID) supersedes the stored pair,
	// or no record exists. A stale write is a no-op reported through
	// applied == false, never an error.
	Upsert(ctx context.Context, rec *Record) (applied bool, err error)

	// Cancel marks the record canceled with the deletion's (occurredAt,
	// eventID) iff that key supersedes or equals the stored one, so a
	// stale deletion cannot erase a newer state. When no record exists a
	// bare canceled tombstone is written; dropping the row instead would
	// let an older create delivered later resurrect the subscription. A
	// stale deletion is a no-op reported through canceled == false.
	Cancel(ctx context.Context, principalID id.PrincipalID, occurredAt time.Time, eventID string) (canceled bool, err error)
}
