// Package provider abstracts the external billing provider.
//
// Turnstile never computes charges itself; the provider is the system of
// record for checkout, billing, and subscription lifecycle. Outbound calls
// are thin pass-throughs and must not be treated as state changes: the
// ledger only moves when the reconciler later observes the corresponding
// provider event.
package provider

import (
	"context"

	"github.com/xraph/turnstile/event"
	"github.com/xraph/turnstile/id"
)

// CheckoutParams describes a hosted-checkout session request.
type CheckoutParams struct {
	PrincipalID id.PrincipalID
	Email       string

	// SuccessURL and CancelURL are the redirect targets for the hosted
	// flow. SuccessURL may contain the provider's session-ID placeholder.
	SuccessURL string
	CancelURL  string
}

// Checkout is the result of starting a hosted-checkout flow.
type Checkout struct {
	// URL is the redirect target for the provider's hosted checkout page.
	URL string

	// CustomerID is the provider customer created or reused for the
	// principal.
	CustomerID string
}

// Provider is the interface to the external billing system.
type Provider interface {
	// CreateCheckout starts a hosted-checkout session for a new
	// subscription purchase and returns the redirect target.
	CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error)

	// CancelAtPeriodEnd requests deferred cancellation of a provider
	// subscription. Entitlement is unaffected until the provider's
	// deletion event is reconciled.
	CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) error

	// ParseEvent verifies the authenticity of a raw webhook payload and
	// maps it onto an event variant. A signature failure must be
	// distinguishable from any processing outcome.
	ParseEvent(payload []byte, sigHeader string) (event.Event, error)
}
