// Package turnstile provides a subscription-gated access-control engine
// for Go applications.
//
// Turnstile is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - A local subscription ledger reconciled from billing-provider
//     lifecycle events under explicit ordering and idempotency rules
//   - Cheap entitlement checks safe to run on every protected request
//   - Hosted-checkout and deferred-cancellation initiators (Stripe
//     built-in)
//   - Pluggable storage (memory, SQLite, PostgreSQL)
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/turnstile"
//	    "github.com/xraph/turnstile/store/memory"
//	)
//
//	eng := turnstile.New(memory.New(),
//	    turnstile.WithProvider(stripeProvider),
//	)
//
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// The ledger holds at most one subscription record per principal. It is
// purely event-driven: only reconciled provider events mutate it.
//
//	result, err := eng.ApplyEvent(ctx, ev)
//
// Events may arrive out of order or more than once. An event is applied
// only if it supersedes the record's last ordering key (occurred-at
// timestamp, then event ID); redelivered event IDs are silent no-ops.
// Reconciliation therefore converges to the same record for any delivery
// order.
//
// Entitlement checks are pure reads:
//
//	d, err := eng.Entitled(ctx, principalID)
//	if d.Allowed {
//	    // Serve gated content.
//	}
//
// A principal is entitled while a record exists with active status and
// the current time is inside the paid period. The period-end check is
// deliberate defense in depth: a delayed status-update event cannot
// extend access past the paid window.
//
// # Initiators
//
// StartCheckout and RequestCancellation are thin pass-throughs to the
// billing provider. Neither mutates the ledger; "intent requested" and
// "state changed" stay decoupled until the provider's own event is
// observed. A timed-out provider call reports ErrOutcomeUnknown and must
// not be assumed to have succeeded.
package turnstile
