package entitlement

import (
	"time"

	"github.com/xraph/turnstile/subscription"
)

// Decision is the result of an entitlement check for one principal.
type Decision struct {
	Allowed   bool                `json:"allowed"`
	Status    subscription.Status `json:"status,omitempty"`
	PeriodEnd time.Time           `json:"period_end,omitzero"`
	Reason    string              `json:"reason,omitempty"`
}

// Well-known denial reasons.
const (
	ReasonNoRecord      = "no subscription record"
	ReasonStatus        = "subscription not active"
	ReasonPeriodExpired = "billing period expired"
)
