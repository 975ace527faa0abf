package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/store/memory"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

func record(pid id.PrincipalID, status subscription.Status, at time.Time, eventID string) *subscription.Record {
	return &subscription.Record{
		Entity:                 types.NewEntity(),
		PrincipalID:            pid,
		ProviderSubscriptionID: "sub_test",
		ProviderCustomerID:     "cus_test",
		Status:                 status,
		CurrentPeriodStart:     at,
		CurrentPeriodEnd:       at.Add(30 * 24 * time.Hour),
		LastUpdatedAt:          at,
		LastEventID:            eventID,
	}
}

func TestPrincipalLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	p := &principal.Principal{
		Entity:       types.NewEntity(),
		ID:           id.NewPrincipalID(),
		Email:        "cadet@example.com",
		PasswordHash: []byte("hash"),
	}
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatalf("CreatePrincipal: %v", err)
	}

	if err := s.CreatePrincipal(ctx, p); !errors.Is(err, turnstile.ErrPrincipalExists) {
		t.Errorf("duplicate create: got %v, want ErrPrincipalExists", err)
	}

	got, err := s.GetPrincipal(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPrincipal: %v", err)
	}
	if got.Email != p.Email {
		t.Errorf("Email: got %q, want %q", got.Email, p.Email)
	}

	byEmail, err := s.GetPrincipalByEmail(ctx, "cadet@example.com")
	if err != nil {
		t.Fatalf("GetPrincipalByEmail: %v", err)
	}
	if byEmail.ID.String() != p.ID.String() {
		t.Errorf("ID: got %q, want %q", byEmail.ID, p.ID)
	}

	if _, err := s.GetPrincipal(ctx, id.NewPrincipalID()); !errors.Is(err, turnstile.ErrPrincipalNotFound) {
		t.Errorf("missing principal: got %v, want ErrPrincipalNotFound", err)
	}
}

func TestUpsertOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pid := id.NewPrincipalID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	applied, err := s.UpsertSubscription(ctx, record(pid, subscription.StatusActive, base, "evt_b"))
	if err != nil || !applied {
		t.Fatalf("initial upsert: applied=%v err=%v", applied, err)
	}

	// Stale event: older timestamp must be rejected without error.
	applied, err = s.UpsertSubscription(ctx, record(pid, subscription.StatusCanceled, base.Add(-time.Hour), "evt_z"))
	if err != nil {
		t.Fatalf("stale upsert: %v", err)
	}
	if applied {
		t.Error("stale upsert should not apply")
	}

	got, err := s.GetSubscription(ctx, pid)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Status != subscription.StatusActive {
		t.Errorf("status regressed to %q after stale upsert", got.Status)
	}

	// Same timestamp, greater event ID wins the tie-break.
	applied, err = s.UpsertSubscription(ctx, record(pid, subscription.StatusPastDue, base, "evt_c"))
	if err != nil || !applied {
		t.Fatalf("tie-break upsert: applied=%v err=%v", applied, err)
	}

	// Same timestamp, lesser event ID loses.
	applied, err = s.UpsertSubscription(ctx, record(pid, subscription.StatusCanceled, base, "evt_a"))
	if err != nil {
		t.Fatalf("tie-break loser upsert: %v", err)
	}
	if applied {
		t.Error("lesser event ID should lose the tie-break")
	}

	got, _ = s.GetSubscription(ctx, pid)
	if got.Status != subscription.StatusPastDue {
		t.Errorf("final status: got %q, want past_due", got.Status)
	}
}

func TestCancelGuard(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pid := id.NewPrincipalID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.UpsertSubscription(ctx, record(pid, subscription.StatusActive, base, "evt_1")); err != nil {
		t.Fatal(err)
	}

	// Stale deletion must not overwrite the newer active state.
	canceled, err := s.CancelSubscription(ctx, pid, base.Add(-time.Minute), "evt_0")
	if err != nil {
		t.Fatalf("stale cancel: %v", err)
	}
	if canceled {
		t.Error("stale cancel should be rejected")
	}
	got, err := s.GetSubscription(ctx, pid)
	if err != nil {
		t.Fatalf("record lost to stale cancel: %v", err)
	}
	if got.Status != subscription.StatusActive {
		t.Errorf("status regressed to %q after stale cancel", got.Status)
	}

	// A cancel carrying the same stamp as the last write succeeds.
	canceled, err = s.CancelSubscription(ctx, pid, base, "evt_1")
	if err != nil || !canceled {
		t.Fatalf("equal-stamp cancel: canceled=%v err=%v", canceled, err)
	}
	got, err = s.GetSubscription(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != subscription.StatusCanceled || got.LastEventID != "evt_1" {
		t.Errorf("after cancel: %q/%q, want canceled/evt_1", got.Status, got.LastEventID)
	}

	// A newer create still supersedes the canceled record.
	applied, err := s.UpsertSubscription(ctx, record(pid, subscription.StatusActive, base.Add(time.Hour), "evt_2"))
	if err != nil || !applied {
		t.Fatalf("renewal after cancel: applied=%v err=%v", applied, err)
	}
}

// Canceling with no record present writes a tombstone holding the
// deletion's ordering key, so a create with an older key cannot
// resurrect the subscription.
func TestCancelAbsentWritesTombstone(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pid := id.NewPrincipalID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	canceled, err := s.CancelSubscription(ctx, pid, base.Add(time.Hour), "evt_del")
	if err != nil || !canceled {
		t.Fatalf("absent cancel: canceled=%v err=%v", canceled, err)
	}

	got, err := s.GetSubscription(ctx, pid)
	if err != nil {
		t.Fatalf("tombstone missing: %v", err)
	}
	if got.Status != subscription.StatusCanceled || got.LastEventID != "evt_del" {
		t.Errorf("tombstone: %q/%q, want canceled/evt_del", got.Status, got.LastEventID)
	}

	applied, err := s.UpsertSubscription(ctx, record(pid, subscription.StatusActive, base, "evt_create"))
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("create older than the tombstone should be rejected")
	}
}

// The store must treat the caller's record as read-only.
func TestUpsertDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pid := id.NewPrincipalID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.UpsertSubscription(ctx, record(pid, subscription.StatusActive, base, "evt_1")); err != nil {
		t.Fatal(err)
	}

	update := record(pid, subscription.StatusPastDue, base.Add(time.Hour), "evt_2")
	update.CreatedAt = base.Add(time.Hour)
	wantCreatedAt := update.CreatedAt
	if _, err := s.UpsertSubscription(ctx, update); err != nil {
		t.Fatal(err)
	}
	if !update.CreatedAt.Equal(wantCreatedAt) {
		t.Errorf("caller's CreatedAt mutated: got %v, want %v", update.CreatedAt, wantCreatedAt)
	}
}

func TestEventDedup(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	seen, err := s.EventApplied(ctx, "evt_1")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("unseen event reported as applied")
	}

	if err := s.MarkEventApplied(ctx, "evt_1", now); err != nil {
		t.Fatal(err)
	}
	seen, _ = s.EventApplied(ctx, "evt_1")
	if !seen {
		t.Error("marked event not reported as applied")
	}

	if err := s.MarkEventApplied(ctx, "evt_old", now.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	purged, err := s.PurgeEvents(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged: got %d, want 1", purged)
	}
	seen, _ = s.EventApplied(ctx, "evt_1")
	if !seen {
		t.Error("recent event purged")
	}
}

// Concurrent upserts for the same principal must converge on the maximal
// event regardless of interleaving.
func TestConcurrentUpsertsConverge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pid := id.NewPrincipalID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := record(pid, subscription.StatusActive, base.Add(time.Duration(i)*time.Second), fmt.Sprintf("evt_%03d", i))
			if _, err := s.UpsertSubscription(ctx, rec); err != nil {
				t.Errorf("upsert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetSubscription(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	wantAt := base.Add((n - 1) * time.Second)
	if !got.LastUpdatedAt.Equal(wantAt) || got.LastEventID != fmt.Sprintf("evt_%03d", n-1) {
		t.Errorf("converged on (%v, %s), want (%v, evt_%03d)", got.LastUpdatedAt, got.LastEventID, wantAt, n-1)
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.Ping(ctx); !errors.Is(err, turnstile.ErrStoreClosed) {
		t.Errorf("Ping after close: got %v, want ErrStoreClosed", err)
	}
	if _, err := s.UpsertSubscription(ctx, record(id.NewPrincipalID(), subscription.StatusActive, time.Now(), "evt_x")); !errors.Is(err, turnstile.ErrStoreClosed) {
		t.Errorf("Upsert after close: got %v, want ErrStoreClosed", err)
	}
}
