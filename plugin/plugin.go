// Package plugin provides an extensible hook system for Turnstile.
// Plugins can observe reconciliation and access-control lifecycle events
// to extend functionality (metrics, audit trails, notifications).
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a created-class event establishes
// a new ledger record.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, rec interface{}) error
}

// OnSubscriptionUpdated is called when an updated-class event replaces an
// existing ledger record.
type OnSubscriptionUpdated interface {
	Plugin
	OnSubscriptionUpdated(ctx context.Context, rec interface{}) error
}

// OnSubscriptionRemoved is called when a deleted-class event removes a
// ledger record.
type OnSubscriptionRemoved interface {
	Plugin
	OnSubscriptionRemoved(ctx context.Context, principalID string) error
}

// OnEventStale is called when an event is rejected because it does not
// supersede the stored ordering key.
type OnEventStale interface {
	Plugin
	OnEventStale(ctx context.Context, principalID, eventID string) error
}

// OnEventDuplicate is called when a redelivered event is skipped as an
// idempotent no-op.
type OnEventDuplicate interface {
	Plugin
	OnEventDuplicate(ctx context.Context, eventID string) error
}

// OnEventUnrecognized is called when an event of a type this system does
// not model is acknowledged and dropped.
type OnEventUnrecognized interface {
	Plugin
	OnEventUnrecognized(ctx context.Context, eventType string) error
}

// OnEventsPurged is called when the retention worker purges applied-event
// dedup entries.
type OnEventsPurged interface {
	Plugin
	OnEventsPurged(ctx context.Context, count int64, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Access-control hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called on every entitlement decision.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, decision interface{}) error
}

// OnEntitlementDenied is called when an entitlement check denies access.
type OnEntitlementDenied interface {
	Plugin
	OnEntitlementDenied(ctx context.Context, principalID, reason string) error
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted is called when a hosted-checkout session is created.
type OnCheckoutStarted interface {
	Plugin
	OnCheckoutStarted(ctx context.Context, principalID string) error
}

// OnCancellationRequested is called when a deferred cancellation is
// requested from the provider. The ledger is not mutated at this point.
type OnCancellationRequested interface {
	Plugin
	OnCancellationRequested(ctx context.Context, principalID string) error
}

// OnWebhookReceived is called when a verified webhook event reaches the
// reconciler, before it is applied.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, eventID string) error
}
