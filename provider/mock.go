package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/turnstile/event"
)

// Mock is a test double that records calls and returns configurable
// results.
type Mock struct {
	mu sync.Mutex

	// Checkouts collects the params of every CreateCheckout call.
	Checkouts []CheckoutParams
	// Cancellations collects provider subscription IDs passed to
	// CancelAtPeriodEnd.
	Cancellations []string

	// ParseFn, when set, overrides ParseEvent.
	ParseFn func(payload []byte, sigHeader string) (event.Event, error)

	// Error fields allow tests to inject failures.
	CreateCheckoutErr error
	CancelErr         error

	// CheckoutURL is the redirect target returned by CreateCheckout.
	CheckoutURL string

	nextCustomerSeq int
}

// NewMock creates a Mock ready for use.
func NewMock() *Mock {
	return &Mock{CheckoutURL: "https://checkout.example.com/session"}
}

// CreateCheckout records the call and returns a synthetic session.
func (m *Mock) CreateCheckout(_ context.Context, params CheckoutParams) (*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateCheckoutErr != nil {
		return nil, m.CreateCheckoutErr
	}

	m.Checkouts = append(m.Checkouts, params)
	m.nextCustomerSeq++
	return &Checkout{
		URL:        m.CheckoutURL,
		CustomerID: fmt.Sprintf("cus_mock_%d", m.nextCustomerSeq),
	}, nil
}

// CancelAtPeriodEnd records the cancellation request.
func (m *Mock) CancelAtPeriodEnd(_ context.Context, providerSubscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CancelErr != nil {
		return m.CancelErr
	}

	m.Cancellations = append(m.Cancellations, providerSubscriptionID)
	return nil
}

// ParseEvent delegates to ParseFn.
func (m *Mock) ParseEvent(payload []byte, sigHeader string) (event.Event, error) {
	if m.ParseFn != nil {
		return m.ParseFn(payload, sigHeader)
	}
	return nil, fmt.Errorf("provider: mock ParseFn not set")
}

var _ Provider = (*Mock)(nil)
