// Package audithook bridges Turnstile lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend
// on any concrete audit system. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time; without one, events go
// to slog.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/turnstile/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated   = (*Extension)(nil)
	_ plugin.OnSubscriptionUpdated   = (*Extension)(nil)
	_ plugin.OnSubscriptionRemoved   = (*Extension)(nil)
	_ plugin.OnEventStale            = (*Extension)(nil)
	_ plugin.OnEventDuplicate        = (*Extension)(nil)
	_ plugin.OnEventUnrecognized     = (*Extension)(nil)
	_ plugin.OnEventsPurged          = (*Extension)(nil)
	_ plugin.OnEntitlementDenied     = (*Extension)(nil)
	_ plugin.OnCheckoutStarted       = (*Extension)(nil)
	_ plugin.OnCancellationRequested = (*Extension)(nil)
	_ plugin.OnWebhookReceived       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Turnstile lifecycle events to an audit trail
// backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder. A nil Recorder falls back to structured logging.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recorder == nil {
		e.recorder = e.slogRecorder()
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionApplied, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, "", CategorySubscription, nil,
		"event", "subscription_created",
	)
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (e *Extension) OnSubscriptionUpdated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionApplied, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, "", CategorySubscription, nil,
		"event", "subscription_updated",
	)
}

// OnSubscriptionRemoved implements plugin.OnSubscriptionRemoved.
func (e *Extension) OnSubscriptionRemoved(ctx context.Context, principalID string) error {
	return e.record(ctx, ActionSubscriptionRemoved, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, principalID, CategorySubscription, nil,
		"principal_id", principalID,
	)
}

// OnEventStale implements plugin.OnEventStale.
func (e *Extension) OnEventStale(ctx context.Context, principalID, eventID string) error {
	return e.record(ctx, ActionEventStale, SeverityWarning, OutcomeFailure,
		ResourceEvent, eventID, CategorySubscription, nil,
		"principal_id", principalID,
		"event_id", eventID,
	)
}

// OnEventDuplicate implements plugin.OnEventDuplicate.
func (e *Extension) OnEventDuplicate(ctx context.Context, eventID string) error {
	return e.record(ctx, ActionEventDuplicate, SeverityInfo, OutcomeSuccess,
		ResourceEvent, eventID, CategorySubscription, nil,
		"event_id", eventID,
	)
}

// OnEventUnrecognized implements plugin.OnEventUnrecognized.
func (e *Extension) OnEventUnrecognized(ctx context.Context, eventType string) error {
	return e.record(ctx, ActionEventUnrecognized, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryIntegration, nil,
		"event_type", eventType,
	)
}

// OnEventsPurged implements plugin.OnEventsPurged.
func (e *Extension) OnEventsPurged(ctx context.Context, count int64, elapsed time.Duration) error {
	return e.record(ctx, ActionEventsPurged, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategorySubscription, nil,
		"count", count,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (e *Extension) OnWebhookReceived(ctx context.Context, eventID string) error {
	return e.record(ctx, ActionWebhookReceived, SeverityInfo, OutcomeSuccess,
		ResourceEvent, eventID, CategoryIntegration, nil,
		"event_id", eventID,
	)
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnEntitlementDenied implements plugin.OnEntitlementDenied. Allowed
// checks are not audited to keep the trail proportional to denials.
func (e *Extension) OnEntitlementDenied(ctx context.Context, principalID, reason string) error {
	return e.record(ctx, ActionEntitlementDenied, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, principalID, CategoryAccess, nil,
		"principal_id", principalID,
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted implements plugin.OnCheckoutStarted.
func (e *Extension) OnCheckoutStarted(ctx context.Context, principalID string) error {
	return e.record(ctx, ActionCheckoutStarted, SeverityInfo, OutcomeSuccess,
		ResourceProvider, principalID, CategoryIntegration, nil,
		"principal_id", principalID,
	)
}

// OnCancellationRequested implements plugin.OnCancellationRequested.
func (e *Extension) OnCancellationRequested(ctx context.Context, principalID string) error {
	return e.record(ctx, ActionCancellationRequested, SeverityInfo, OutcomeSuccess,
		ResourceProvider, principalID, CategoryIntegration, nil,
		"principal_id", principalID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

// slogRecorder is the fallback backend writing the trail to the logger.
func (e *Extension) slogRecorder() Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		e.logger.Info("audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"category", evt.Category,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"metadata", evt.Metadata,
		)
		return nil
	})
}
