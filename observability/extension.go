// Package observability provides a metrics extension for Turnstile that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/turnstile/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpdated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionRemoved   = (*MetricsExtension)(nil)
	_ plugin.OnEventStale            = (*MetricsExtension)(nil)
	_ plugin.OnEventDuplicate        = (*MetricsExtension)(nil)
	_ plugin.OnEventUnrecognized     = (*MetricsExtension)(nil)
	_ plugin.OnEventsPurged          = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked    = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementDenied     = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutStarted       = (*MetricsExtension)(nil)
	_ plugin.OnCancellationRequested = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Turnstile plugin to automatically track
// reconciliation and access metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Reconciliation metrics
	SubscriptionCreated Counter
	SubscriptionUpdated Counter
	SubscriptionRemoved Counter
	EventsStale         Counter
	EventsDuplicate     Counter
	EventsUnrecognized  Counter
	EventsPurged        Counter
	PurgeLatency        Histogram

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter

	// Provider metrics
	CheckoutsStarted       Counter
	CancellationsRequested Counter
	WebhooksReceived       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Reconciliation metrics
		SubscriptionCreated: factory.Counter("turnstile.subscription.created"),
		SubscriptionUpdated: factory.Counter("turnstile.subscription.updated"),
		SubscriptionRemoved: factory.Counter("turnstile.subscription.removed"),
		EventsStale:         factory.Counter("turnstile.events.stale"),
		EventsDuplicate:     factory.Counter("turnstile.events.duplicate"),
		EventsUnrecognized:  factory.Counter("turnstile.events.unrecognized"),
		EventsPurged:        factory.Counter("turnstile.events.purged"),
		PurgeLatency:        factory.Histogram("turnstile.events.purge.latency_ms"),

		// Entitlement metrics
		EntitlementChecks: factory.Counter("turnstile.entitlement.checks"),
		EntitlementDenied: factory.Counter("turnstile.entitlement.denied"),

		// Provider metrics
		CheckoutsStarted:       factory.Counter("turnstile.checkout.started"),
		CancellationsRequested: factory.Counter("turnstile.cancellation.requested"),
		WebhooksReceived:       factory.Counter("turnstile.webhook.received"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (m *MetricsExtension) OnSubscriptionUpdated(_ context.Context, _ interface{}) error {
	m.SubscriptionUpdated.Inc()
	return nil
}

// OnSubscriptionRemoved implements plugin.OnSubscriptionRemoved.
func (m *MetricsExtension) OnSubscriptionRemoved(_ context.Context, _ string) error {
	m.SubscriptionRemoved.Inc()
	return nil
}

// OnEventStale implements plugin.OnEventStale.
func (m *MetricsExtension) OnEventStale(_ context.Context, _, _ string) error {
	m.EventsStale.Inc()
	return nil
}

// OnEventDuplicate implements plugin.OnEventDuplicate.
func (m *MetricsExtension) OnEventDuplicate(_ context.Context, _ string) error {
	m.EventsDuplicate.Inc()
	return nil
}

// OnEventUnrecognized implements plugin.OnEventUnrecognized.
func (m *MetricsExtension) OnEventUnrecognized(_ context.Context, _ string) error {
	m.EventsUnrecognized.Inc()
	return nil
}

// OnEventsPurged implements plugin.OnEventsPurged.
func (m *MetricsExtension) OnEventsPurged(_ context.Context, count int64, elapsed time.Duration) error {
	m.EventsPurged.Add(float64(count))
	m.PurgeLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, _ interface{}) error {
	m.EntitlementChecks.Inc()
	return nil
}

// OnEntitlementDenied implements plugin.OnEntitlementDenied.
func (m *MetricsExtension) OnEntitlementDenied(_ context.Context, _, _ string) error {
	m.EntitlementDenied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted implements plugin.OnCheckoutStarted.
func (m *MetricsExtension) OnCheckoutStarted(_ context.Context, _ string) error {
	m.CheckoutsStarted.Inc()
	return nil
}

// OnCancellationRequested implements plugin.OnCancellationRequested.
func (m *MetricsExtension) OnCancellationRequested(_ context.Context, _ string) error {
	m.CancellationsRequested.Inc()
	return nil
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _ string) error {
	m.WebhooksReceived.Inc()
	return nil
}
