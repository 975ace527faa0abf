// Package stripe implements provider.Provider using the Stripe API.
//
// Checkout uses Stripe's hosted checkout sessions; cancellation flips
// cancel_at_period_end so access runs out with the paid period. Webhook
// payloads are signature-verified with the endpoint secret before any
// parsing.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	subapi "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/event"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/provider"
	"github.com/xraph/turnstile/subscription"
)

// metadataPrincipalKey is the metadata field carrying the local principal
// ID on Stripe customers, checkout sessions, and subscriptions. Webhook
// events are mapped back to a principal through it.
const metadataPrincipalKey = "principal_id"

// Price describes the single subscription product sold through checkout.
type Price struct {
	Currency    string
	AmountCents int64
	Interval    string // "month" or "year"
	Name        string
	Description string
}

// Provider implements provider.Provider against Stripe.
type Provider struct {
	webhookSecret string
	price         Price
}

// New creates a Stripe provider with the given API key, webhook endpoint
// secret, and subscription price.
func New(apiKey, webhookSecret string, price Price) *Provider {
	stripe.Key = apiKey
	return &Provider{
		webhookSecret: webhookSecret,
		price:         price,
	}
}

// CreateCheckout creates a Stripe customer tagged with the principal ID
// and opens a hosted checkout session for the subscription.
func (p *Provider) CreateCheckout(_ context.Context, params provider.CheckoutParams) (*provider.Checkout, error) {
	cust, err := customer.New(&stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Metadata: map[string]string{
			metadataPrincipalKey: params.PrincipalID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create customer: %w", err)
	}

	sess, err := session.New(&stripe.CheckoutSessionParams{
		Customer:           stripe.String(cust.ID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.price.Currency),
					UnitAmount: stripe.Int64(p.price.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(p.price.Name),
						Description: stripe.String(p.price.Description),
					},
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(p.price.Interval),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				metadataPrincipalKey: params.PrincipalID.String(),
			},
		},
		Metadata: map[string]string{
			metadataPrincipalKey: params.PrincipalID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &provider.Checkout{URL: sess.URL, CustomerID: cust.ID}, nil
}

// CancelAtPeriodEnd requests deferred cancellation of a Stripe
// subscription. Stripe emits customer.subscription.deleted at period end,
// which is when the local ledger actually changes.
func (p *Provider) CancelAtPeriodEnd(_ context.Context, providerSubscriptionID string) error {
	_, err := subapi.Update(providerSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("stripe: cancel at period end: %w", err)
	}
	return nil
}

// ParseEvent verifies the Stripe-Signature header and maps the event onto
// a local variant. Event types outside the subscription lifecycle come
// back as event.Unrecognized so the caller can acknowledge them.
func (p *Provider) ParseEvent(payload []byte, sigHeader string) (event.Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, sigHeader, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", turnstile.ErrSignatureInvalid, err)
	}
	return mapEvent(stripeEvent)
}

func mapEvent(stripeEvent stripe.Event) (event.Event, error) {
	meta := event.Meta{
		ID:         stripeEvent.ID,
		OccurredAt: time.Unix(stripeEvent.Created, 0).UTC(),
	}

	switch stripeEvent.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		return event.Unrecognized{EventMeta: meta, Type: string(stripeEvent.Type)}, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("stripe: parse subscription event %s: %w", stripeEvent.ID, err)
	}

	principalID, err := id.ParsePrincipalID(sub.Metadata[metadataPrincipalKey])
	if err != nil {
		return nil, fmt.Errorf("stripe: event %s: bad or missing %s metadata: %w",
			stripeEvent.ID, metadataPrincipalKey, err)
	}
	meta.PrincipalID = principalID

	if stripeEvent.Type == "customer.subscription.deleted" {
		return event.Deleted{EventMeta: meta}, nil
	}

	snap := event.Snapshot{
		ProviderSubscriptionID: sub.ID,
		Status:                 mapStatus(sub.Status),
	}
	if sub.Customer != nil {
		snap.ProviderCustomerID = sub.Customer.ID
	}
	// Billing-period bounds live on the subscription items.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snap.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		snap.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}

	if stripeEvent.Type == "customer.subscription.created" {
		return event.Created{EventMeta: meta, Subscription: snap}, nil
	}
	return event.Updated{EventMeta: meta, Subscription: snap}, nil
}

// mapStatus folds Stripe's subscription statuses onto the local model.
// Trialing customers have access; unpaid and paused are treated as
// past_due so access lapses without erasing the record.
func mapStatus(s stripe.SubscriptionStatus) subscription.Status {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return subscription.StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return subscription.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return subscription.StatusCanceled
	case stripe.SubscriptionStatusIncomplete:
		return subscription.StatusPending
	default:
		return subscription.StatusPending
	}
}

var _ provider.Provider = (*Provider)(nil)
