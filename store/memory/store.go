// Package memory provides an in-memory Store implementation.
//
// It is the reference implementation for tests and demos. State does not
// survive a restart; production deployments should use the sqlite or
// postgres stores.
package memory

import (
	"context"
	"time"

	"sync"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/event"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Principal storage, indexed by ID and by email.
	principals map[string]*principal.Principal
	byEmail    map[string]string

	// Subscription ledger, keyed by principal ID.
	records map[string]*subscription.Record

	// Applied provider event IDs for idempotent redelivery handling.
	appliedEvents map[string]time.Time

	closed bool
}

func New() *Store {
	return &Store{
		principals:    make(map[string]*principal.Principal),
		byEmail:       make(map[string]string),
		records:       make(map[string]*subscription.Record),
		appliedEvents: make(map[string]time.Time),
	}
}

// ──────────────────────────────────────────────────
// Principal methods
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(_ context.Context, p *principal.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	if _, exists := s.byEmail[p.Email]; exists {
		return turnstile.ErrPrincipalExists
	}
	if _, exists := s.principals[p.ID.String()]; exists {
		return turnstile.ErrPrincipalExists
	}

	cp := *p
	s.principals[p.ID.String()] = &cp
	s.byEmail[p.Email] = p.ID.String()
	return nil
}

func (s *Store) GetPrincipal(_ context.Context, principalID id.PrincipalID) (*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.principals[principalID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, turnstile.ErrPrincipalNotFound
}

func (s *Store) GetPrincipalByEmail(_ context.Context, email string) (*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pid, ok := s.byEmail[email]; ok {
		if p, ok := s.principals[pid]; ok {
			cp := *p
			return &cp, nil
		}
	}
	return nil, turnstile.ErrPrincipalNotFound
}

// ──────────────────────────────────────────────────
// Subscription ledger methods
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(_ context.Context, principalID id.PrincipalID) (*subscription.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[principalID.String()]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, turnstile.ErrNoSubscription
}

func (s *Store) UpsertSubscription(_ context.Context, rec *subscription.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, turnstile.ErrStoreClosed
	}

	key := rec.PrincipalID.String()
	cp := *rec
	if existing, ok := s.records[key]; ok {
		if !event.Supersedes(rec.LastUpdatedAt, rec.LastEventID, existing.LastUpdatedAt, existing.LastEventID) {
			return false, nil
		}
		cp.CreatedAt = existing.CreatedAt
	}

	s.records[key] = &cp
	return true, nil
}

func (s *Store) CancelSubscription(_ context.Context, principalID id.PrincipalID, occurredAt time.Time, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, turnstile.ErrStoreClosed
	}

	key := principalID.String()
	existing, ok := s.records[key]
	if !ok {
		// Deletion delivered before its creation: the tombstone keeps the
		// ordering key so the late create loses the upsert.
		s.records[key] = &subscription.Record{
			Entity:        types.NewEntity(),
			PrincipalID:   principalID,
			Status:        subscription.StatusCanceled,
			LastUpdatedAt: occurredAt,
			LastEventID:   eventID,
		}
		return true, nil
	}
	if !event.SupersedesOrEqual(occurredAt, eventID, existing.LastUpdatedAt, existing.LastEventID) {
		return false, nil
	}

	cp := *existing
	cp.Status = subscription.StatusCanceled
	cp.LastUpdatedAt = occurredAt
	cp.LastEventID = eventID
	cp.UpdatedAt = time.Now().UTC()
	s.records[key] = &cp
	return true, nil
}

// ──────────────────────────────────────────────────
// Event dedup methods
// ──────────────────────────────────────────────────

func (s *Store) EventApplied(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.appliedEvents[eventID]
	return ok, nil
}

func (s *Store) MarkEventApplied(_ context.Context, eventID string, appliedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	s.appliedEvents[eventID] = appliedAt
	return nil
}

func (s *Store) PurgeEvents(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for eventID, appliedAt := range s.appliedEvents {
		if appliedAt.Before(before) {
			delete(s.appliedEvents, eventID)
			purged++
		}
	}
	return purged, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return turnstile.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
