package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// testPlugin implements a subset of hooks and records emissions.
type testPlugin struct {
	mu   sync.Mutex
	name string

	staleEvents   []string
	checkouts     []string
	subscriptions int

	hookErr error
}

func (p *testPlugin) Name() string { return p.name }

func (p *testPlugin) OnEventStale(_ context.Context, _, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staleEvents = append(p.staleEvents, eventID)
	return p.hookErr
}

func (p *testPlugin) OnCheckoutStarted(_ context.Context, principalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkouts = append(p.checkouts, principalID)
	return p.hookErr
}

func (p *testPlugin) OnSubscriptionCreated(_ context.Context, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions++
	return p.hookErr
}

func TestRegisterAndDispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	p := &testPlugin{name: "test"}

	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if got := r.Get("test"); got != p {
		t.Errorf("Get returned %v", got)
	}
	if got := r.Get("absent"); got != nil {
		t.Errorf("Get for absent plugin returned %v", got)
	}

	r.EmitEventStale(ctx, "prin_1", "evt_1")
	r.EmitCheckoutStarted(ctx, "prin_1")
	r.EmitSubscriptionCreated(ctx, nil)
	// Hooks the plugin does not implement are skipped.
	r.EmitEventDuplicate(ctx, "evt_1")

	if len(p.staleEvents) != 1 || p.staleEvents[0] != "evt_1" {
		t.Errorf("stale events: %v", p.staleEvents)
	}
	if len(p.checkouts) != 1 {
		t.Errorf("checkouts: %v", p.checkouts)
	}
	if p.subscriptions != 1 {
		t.Errorf("subscriptions: %d", p.subscriptions)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&testPlugin{name: "dup"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&testPlugin{name: "dup"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	p := &testPlugin{name: "failing", hookErr: errors.New("boom")}

	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	// Emission must complete despite the hook error.
	r.EmitEventStale(ctx, "prin_1", "evt_1")
	if len(p.staleEvents) != 1 {
		t.Errorf("hook not invoked: %v", p.staleEvents)
	}
}
