package turnstile

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/turnstile/entitlement"
	"github.com/xraph/turnstile/event"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/plugin"
	"github.com/xraph/turnstile/provider"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

// lockStripes is the size of the keyed mutex pool serializing per-principal
// reconciliation. Events for different principals proceed in parallel.
const lockStripes = 64

// Engine is the subscription access-control engine: it reconciles
// billing-provider lifecycle events into the local ledger and answers
// entitlement checks against it.
type Engine struct {
	store    store.Store
	provider provider.Provider
	plugins  *plugin.Registry
	logger   *slog.Logger

	// now is injectable for deterministic entitlement tests.
	now func() time.Time

	// Per-principal reconciliation locks.
	locks [lockStripes]sync.Mutex

	// Background dedup-retention worker.
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	providerTimeout time.Duration
	eventRetention  time.Duration
	purgeInterval   time.Duration
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		stopChan:        make(chan struct{}),
		providerTimeout: 10 * time.Second,
		eventRetention:  30 * 24 * time.Hour,
		purgeInterval:   time.Hour,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithProvider sets the billing provider used by the checkout and
// cancellation initiators.
func WithProvider(p provider.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source used by entitlement checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithProviderTimeout bounds outbound provider calls.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.providerTimeout = d
	}
}

// WithEventRetention sets how long applied-event dedup entries are kept.
func WithEventRetention(d time.Duration) Option {
	return func(e *Engine) {
		e.eventRetention = d
	}
}

// WithPurgeInterval sets how often the retention worker runs.
func WithPurgeInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.purgeInterval = d
	}
}

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.purgeWorker(ctx)

	e.logger.Info("turnstile started",
		"provider_timeout", e.providerTimeout,
		"event_retention", e.eventRetention,
		"purge_interval", e.purgeInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Event reconciliation
// ──────────────────────────────────────────────────

// ApplyResult describes the outcome of reconciling one provider event.
type ApplyResult string

const (
	// ResultApplied means the event mutated the ledger.
	ResultApplied ApplyResult = "applied"
	// ResultRemoved means a deleted-class event terminated the record,
	// leaving a canceled tombstone with the deletion's ordering key.
	ResultRemoved ApplyResult = "removed"
	// ResultStale means the event was rejected by the ordering rule.
	ResultStale ApplyResult = "stale"
	// ResultDuplicate means the event ID was already applied.
	ResultDuplicate ApplyResult = "duplicate"
	// ResultIgnored means the event type is not modeled.
	ResultIgnored ApplyResult = "ignored"
)

// ApplyEvent reconciles a verified provider lifecycle event into the
// ledger. Stale, duplicate, and unrecognized events succeed with a
// non-applied result so the provider is never told to retry them; an
// error is returned only for store failures.
func (e *Engine) ApplyEvent(ctx context.Context, ev event.Event) (ApplyResult, error) {
	meta := ev.Meta()
	e.plugins.EmitWebhookReceived(ctx, meta.ID)

	if u, ok := ev.(event.Unrecognized); ok {
		e.logger.Info("ignoring unrecognized event type",
			"event_id", meta.ID,
			"type", u.Type,
		)
		e.plugins.EmitEventUnrecognized(ctx, u.Type)
		return ResultIgnored, nil
	}

	if meta.PrincipalID.IsNil() {
		return ResultIgnored, fmt.Errorf("%w: event %s carries no principal", ErrInvalidInput, meta.ID)
	}

	// Serialize reconciliation per principal; the store CAS is the final
	// arbiter, the lock just keeps check-then-act sequences atomic.
	lock := e.lockFor(meta.PrincipalID)
	lock.Lock()
	defer lock.Unlock()

	applied, err := e.store.EventApplied(ctx, meta.ID)
	if err != nil {
		return "", fmt.Errorf("check event dedup: %w", err)
	}
	if applied {
		e.logger.Debug("skipping redelivered event", "event_id", meta.ID)
		e.plugins.EmitEventDuplicate(ctx, meta.ID)
		return ResultDuplicate, nil
	}

	var result ApplyResult
	switch v := ev.(type) {
	case event.Created:
		result, err = e.applySnapshot(ctx, meta, v.Subscription, true)
	case event.Updated:
		result, err = e.applySnapshot(ctx, meta, v.Subscription, false)
	case event.Deleted:
		result, err = e.applyDeleted(ctx, meta)
	default:
		// Unrecognized is handled above; the sealed interface admits no
		// other variants.
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}

	if err := e.store.MarkEventApplied(ctx, meta.ID, e.now()); err != nil {
		return "", fmt.Errorf("mark event applied: %w", err)
	}

	return result, nil
}

func (e *Engine) applySnapshot(ctx context.Context, meta event.Meta, snap event.Snapshot, created bool) (ApplyResult, error) {
	if snap.PeriodEnd.Before(snap.PeriodStart) {
		e.logger.Warn("ignoring snapshot with inverted period bounds",
			"event_id", meta.ID,
			"principal_id", meta.PrincipalID.String(),
			"period_start", snap.PeriodStart,
			"period_end", snap.PeriodEnd,
		)
		return ResultIgnored, nil
	}

	rec := &subscription.Record{
		Entity:                 types.NewEntity(),
		PrincipalID:            meta.PrincipalID,
		ProviderSubscriptionID: snap.ProviderSubscriptionID,
		ProviderCustomerID:     snap.ProviderCustomerID,
		Status:                 snap.Status,
		CurrentPeriodStart:     snap.PeriodStart,
		CurrentPeriodEnd:       snap.PeriodEnd,
		LastUpdatedAt:          meta.OccurredAt,
		LastEventID:            meta.ID,
	}

	applied, err := e.store.UpsertSubscription(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		e.logger.Info("rejected stale event",
			"event_id", meta.ID,
			"principal_id", meta.PrincipalID.String(),
			"occurred_at", meta.OccurredAt,
		)
		e.plugins.EmitEventStale(ctx, meta.PrincipalID.String(), meta.ID)
		return ResultStale, nil
	}

	e.logger.Info("applied subscription event",
		"event_id", meta.ID,
		"principal_id", meta.PrincipalID.String(),
		"status", rec.Status,
		"period_end", rec.CurrentPeriodEnd,
	)
	if created {
		e.plugins.EmitSubscriptionCreated(ctx, rec)
	} else {
		e.plugins.EmitSubscriptionUpdated(ctx, rec)
	}
	return ResultApplied, nil
}

func (e *Engine) applyDeleted(ctx context.Context, meta event.Meta) (ApplyResult, error) {
	// A deletion marks the record canceled instead of erasing it. The
	// row keeps the deletion's ordering key, so a create or update with
	// an older key delivered afterwards loses the upsert guard rather
	// than resurrecting a subscription the provider already terminated.
	canceled, err := e.store.CancelSubscription(ctx, meta.PrincipalID, meta.OccurredAt, meta.ID)
	if err != nil {
		return "", fmt.Errorf("cancel subscription: %w", err)
	}
	if !canceled {
		// A newer state won the race; a stale deletion must not erase a
		// renewal.
		e.logger.Info("rejected stale deletion",
			"event_id", meta.ID,
			"principal_id", meta.PrincipalID.String(),
		)
		e.plugins.EmitEventStale(ctx, meta.PrincipalID.String(), meta.ID)
		return ResultStale, nil
	}

	e.logger.Info("canceled subscription record",
		"event_id", meta.ID,
		"principal_id", meta.PrincipalID.String(),
	)
	e.plugins.EmitSubscriptionRemoved(ctx, meta.PrincipalID.String())
	return ResultRemoved, nil
}

// ──────────────────────────────────────────────────
// Access decision gate
// ──────────────────────────────────────────────────

// Entitled answers whether the principal currently has access to gated
// content. The decision is a pure function of ledger state and the clock:
// entitled iff a record exists, its status is active, and the current
// time is within the paid period. One store read, no side effects.
func (e *Engine) Entitled(ctx context.Context, principalID id.PrincipalID) (*entitlement.Decision, error) {
	rec, err := e.store.GetSubscription(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			d := &entitlement.Decision{Allowed: false, Reason: entitlement.ReasonNoRecord}
			e.emitDecision(ctx, principalID, d)
			return d, nil
		}
		return nil, err
	}

	d := &entitlement.Decision{
		Status:    rec.Status,
		PeriodEnd: rec.CurrentPeriodEnd,
	}

	now := e.now()
	switch {
	case rec.Status != subscription.StatusActive:
		d.Reason = entitlement.ReasonStatus
	case now.After(rec.CurrentPeriodEnd):
		// Status flips lag the provider; the hard period-end check stops
		// access drifting past the paid window.
		d.Reason = entitlement.ReasonPeriodExpired
	default:
		d.Allowed = true
	}

	e.emitDecision(ctx, principalID, d)
	return d, nil
}

func (e *Engine) emitDecision(ctx context.Context, principalID id.PrincipalID, d *entitlement.Decision) {
	e.plugins.EmitEntitlementChecked(ctx, d)
	if !d.Allowed {
		e.plugins.EmitEntitlementDenied(ctx, principalID.String(), d.Reason)
	}
}

// Subscription returns the ledger record for a principal, or
// ErrNoSubscription.
func (e *Engine) Subscription(ctx context.Context, principalID id.PrincipalID) (*subscription.Record, error) {
	return e.store.GetSubscription(ctx, principalID)
}

// ──────────────────────────────────────────────────
// Checkout / cancellation initiators
// ──────────────────────────────────────────────────

// StartCheckout begins a hosted-checkout flow for the principal and
// returns the provider redirect target. The ledger is not touched; state
// changes arrive later through reconciled events.
func (e *Engine) StartCheckout(ctx context.Context, params provider.CheckoutParams) (*provider.Checkout, error) {
	if e.provider == nil {
		return nil, ErrProviderNotSet
	}
	if _, err := e.store.GetPrincipal(ctx, params.PrincipalID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	checkout, err := e.provider.CreateCheckout(ctx, params)
	if err != nil {
		return nil, e.classifyProviderErr("create checkout", err)
	}

	e.logger.Info("checkout started", "principal_id", params.PrincipalID.String())
	e.plugins.EmitCheckoutStarted(ctx, params.PrincipalID.String())
	return checkout, nil
}

// RequestCancellation asks the provider for deferred cancellation of the
// principal's subscription. Only an acknowledgment is returned; the
// record keeps granting access until the provider's deletion event is
// reconciled at period end.
func (e *Engine) RequestCancellation(ctx context.Context, principalID id.PrincipalID) error {
	if e.provider == nil {
		return ErrProviderNotSet
	}

	rec, err := e.store.GetSubscription(ctx, principalID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	if err := e.provider.CancelAtPeriodEnd(ctx, rec.ProviderSubscriptionID); err != nil {
		return e.classifyProviderErr("request cancellation", err)
	}

	e.logger.Info("cancellation requested",
		"principal_id", principalID.String(),
		"provider_subscription_id", rec.ProviderSubscriptionID,
	)
	e.plugins.EmitCancellationRequested(ctx, principalID.String())
	return nil
}

// classifyProviderErr maps outbound call failures onto the retryable
// sentinels. A deadline expiry means the call may or may not have
// succeeded on the provider side; callers must not assume either.
func (e *Engine) classifyProviderErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.logger.Warn("provider call outcome unknown", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrOutcomeUnknown, op, err)
	}
	e.logger.Warn("provider call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

// ──────────────────────────────────────────────────
// Background retention worker
// ──────────────────────────────────────────────────

func (e *Engine) purgeWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.purgeOnce(ctx)
		}
	}
}

func (e *Engine) purgeOnce(ctx context.Context) {
	start := time.Now()
	cutoff := e.now().Add(-e.eventRetention)

	purged, err := e.store.PurgeEvents(ctx, cutoff)
	if err != nil {
		e.logger.Error("failed to purge applied events",
			"error", err,
			"cutoff", cutoff,
		)
		return
	}

	if purged > 0 {
		elapsed := time.Since(start)
		e.plugins.EmitEventsPurged(ctx, purged, elapsed)
		e.logger.Debug("purged applied events",
			"count", purged,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (e *Engine) lockFor(principalID id.PrincipalID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(principalID.String())) //nolint:errcheck // fnv never errors
	return &e.locks[h.Sum32()%lockStripes]
}
