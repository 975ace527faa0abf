package audithook

import (
	"context"
	"testing"
)

type captureRecorder struct {
	events []*AuditEvent
}

func (c *captureRecorder) Record(_ context.Context, evt *AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestRecordsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	rec := &captureRecorder{}
	ext := New(rec)

	if err := ext.OnEventStale(ctx, "prin_123", "evt_1"); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnEntitlementDenied(ctx, "prin_123", "period_expired"); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnCheckoutStarted(ctx, "prin_123"); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 3 {
		t.Fatalf("events: got %d, want 3", len(rec.events))
	}

	stale := rec.events[0]
	if stale.Action != ActionEventStale || stale.Outcome != OutcomeFailure {
		t.Errorf("stale event: %+v", stale)
	}
	if stale.Metadata["event_id"] != "evt_1" {
		t.Errorf("stale metadata: %+v", stale.Metadata)
	}

	denied := rec.events[1]
	if denied.Action != ActionEntitlementDenied || denied.Severity != SeverityWarning {
		t.Errorf("denied event: %+v", denied)
	}
	if denied.Metadata["reason"] != "period_expired" {
		t.Errorf("denied metadata: %+v", denied.Metadata)
	}
}

func TestActionFiltering(t *testing.T) {
	ctx := context.Background()

	t.Run("enabled subset", func(t *testing.T) {
		rec := &captureRecorder{}
		ext := New(rec, WithEnabledActions(ActionEventStale))

		_ = ext.OnEventStale(ctx, "prin_1", "evt_1")
		_ = ext.OnCheckoutStarted(ctx, "prin_1")

		if len(rec.events) != 1 || rec.events[0].Action != ActionEventStale {
			t.Errorf("events: %+v", rec.events)
		}
	})

	t.Run("disabled subset", func(t *testing.T) {
		rec := &captureRecorder{}
		ext := New(rec, WithDisabledActions(ActionWebhookReceived))

		_ = ext.OnWebhookReceived(ctx, "evt_1")
		_ = ext.OnEventDuplicate(ctx, "evt_1")

		if len(rec.events) != 1 || rec.events[0].Action != ActionEventDuplicate {
			t.Errorf("events: %+v", rec.events)
		}
	})
}

func TestNilRecorderFallsBackToLogging(t *testing.T) {
	ext := New(nil)
	// Must not panic.
	if err := ext.OnEventDuplicate(context.Background(), "evt_1"); err != nil {
		t.Fatal(err)
	}
}
