package subscription

import (
	"time"

	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/types"
)

// Status is the local view of a provider subscription's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Valid reports whether s is one of the modeled statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Record is the authoritative local subscription state for one principal.
// At most one Record exists per principal; a newer record replaces, never
// duplicates. The record is purely event-driven: only reconciled provider
// events mutate it.
type Record struct {
	types.Entity
	PrincipalID            id.PrincipalID `json:"principal_id"`
	ProviderSubscriptionID string         `json:"provider_subscription_id"`
	ProviderCustomerID     string         `json:"provider_customer_id"`
	Status                 Status         `json:"status"`
	CurrentPeriodStart     time.Time      `json:"current_period_start"`
	CurrentPeriodEnd       time.Time      `json:"current_period_end"`

	// LastUpdatedAt and LastEventID form the ordering key: an incoming
	// event mutates the record only if it supersedes this pair.
	LastUpdatedAt time.Time `json:"last_updated_at"`
	LastEventID   string    `json:"last_event_id"`
}

// Public is the subset of Record fields safe to return to clients.
type Public struct {
	Status             Status    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
}

// Public projects the record onto its client-visible fields.
func (r *Record) Public() Public {
	return Public{
		Status:             r.Status,
		CurrentPeriodStart: r.CurrentPeriodStart,
		CurrentPeriodEnd:   r.CurrentPeriodEnd,
	}
}

// ActiveAt reports whether the record grants entitlement at the given
// instant: active status and inside the paid period. The period-end check
// is deliberate defense against delayed status-update events.
func (r *Record) ActiveAt(now time.Time) bool {
	return r.Status == StatusActive && !now.After(r.CurrentPeriodEnd)
}
