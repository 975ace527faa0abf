// Package event models billing-provider subscription lifecycle
// notifications as a closed set of variants.
//
// Events arrive asynchronously and possibly out of order, both across
// principals and within a single principal. The only ordering guarantee
// Turnstile relies on is the comparator defined here: OccurredAt first,
// with the lexicographically greater event ID breaking ties. Stores and
// the engine apply an event only if it supersedes the last applied one.
package event

import (
	"time"

	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/subscription"
)

// Meta carries the fields common to every provider notification.
type Meta struct {
	// ID is the provider-assigned event identifier (e.g. "evt_..."),
	// used for idempotent redelivery detection and ordering tie-breaks.
	ID string `json:"id"`

	// PrincipalID is the local principal the event concerns, recovered
	// from provider metadata.
	PrincipalID id.PrincipalID `json:"principal_id"`

	// OccurredAt is the provider's timestamp for the event.
	OccurredAt time.Time `json:"occurred_at"`
}

// Event is the closed interface over provider lifecycle notifications.
// The concrete variants are Created, Updated, Deleted, and Unrecognized.
type Event interface {
	Meta() Meta
	sealed()
}

// Snapshot is the subscription state carried by Created and Updated events.
type Snapshot struct {
	ProviderSubscriptionID string              `json:"provider_subscription_id"`
	ProviderCustomerID     string              `json:"provider_customer_id"`
	Status                 subscription.Status `json:"status"`
	PeriodStart            time.Time           `json:"period_start"`
	PeriodEnd              time.Time           `json:"period_end"`
}

// Created signals a new provider subscription for the principal.
type Created struct {
	EventMeta    Meta
	Subscription Snapshot
}

// Updated signals a status or billing-period change.
type Updated struct {
	EventMeta    Meta
	Subscription Snapshot
}

// Deleted signals the provider has terminated the subscription.
type Deleted struct {
	EventMeta Meta
}

// Unrecognized wraps an event type this system does not model. It is
// acknowledged and ignored so the provider does not retry indefinitely.
type Unrecognized struct {
	EventMeta Meta

	// Type is the provider's raw event type string, kept for logging.
	Type string
}

func (e Created) Meta() Meta      { return e.EventMeta }
func (e Updated) Meta() Meta      { return e.EventMeta }
func (e Deleted) Meta() Meta      { return e.EventMeta }
func (e Unrecognized) Meta() Meta { return e.EventMeta }

func (Created) sealed()      {}
func (Updated) sealed()      {}
func (Deleted) sealed()      {}
func (Unrecognized) sealed() {}

// Supersedes reports whether an event stamped (occurredAt, eventID) should
// replace state last written at (lastAt, lastEventID).
//
// A strictly newer timestamp always wins. On equal timestamps the
// lexicographically greater event ID wins; the rule is arbitrary but
// deterministic, so concurrent deliveries converge to the same record
// regardless of arrival order. An event never supersedes itself.
func Supersedes(occurredAt time.Time, eventID string, lastAt time.Time, lastEventID string) bool {
	if occurredAt.After(lastAt) {
		return true
	}
	if occurredAt.Before(lastAt) {
		return false
	}
	return eventID > lastEventID
}

// SupersedesOrEqual is Supersedes extended to accept the event that wrote
// the current state. Used by deletion handling, where replaying the same
// delete must still succeed as a no-op removal.
func SupersedesOrEqual(occurredAt time.Time, eventID string, lastAt time.Time, lastEventID string) bool {
	if occurredAt.Equal(lastAt) && eventID == lastEventID {
		return true
	}
	return Supersedes(occurredAt, eventID, lastAt, lastEventID)
}
