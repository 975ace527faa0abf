package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// callTimeout bounds a single plugin hook invocation so a misbehaving
// plugin cannot stall reconciliation.
const callTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Interfaces are cached at registration time so emission is a slice walk,
// not a type assertion per call.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onSubscriptionCreated   []OnSubscriptionCreated
	onSubscriptionUpdated   []OnSubscriptionUpdated
	onSubscriptionRemoved   []OnSubscriptionRemoved
	onEventStale            []OnEventStale
	onEventDuplicate        []OnEventDuplicate
	onEventUnrecognized     []OnEventUnrecognized
	onEventsPurged          []OnEventsPurged
	onEntitlementChecked    []OnEntitlementChecked
	onEntitlementDenied     []OnEntitlementDenied
	onCheckoutStarted       []OnCheckoutStarted
	onCancellationRequested []OnCancellationRequested
	onWebhookReceived       []OnWebhookReceived
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionUpdated); ok {
		r.onSubscriptionUpdated = append(r.onSubscriptionUpdated, v)
	}
	if v, ok := p.(OnSubscriptionRemoved); ok {
		r.onSubscriptionRemoved = append(r.onSubscriptionRemoved, v)
	}
	if v, ok := p.(OnEventStale); ok {
		r.onEventStale = append(r.onEventStale, v)
	}
	if v, ok := p.(OnEventDuplicate); ok {
		r.onEventDuplicate = append(r.onEventDuplicate, v)
	}
	if v, ok := p.(OnEventUnrecognized); ok {
		r.onEventUnrecognized = append(r.onEventUnrecognized, v)
	}
	if v, ok := p.(OnEventsPurged); ok {
		r.onEventsPurged = append(r.onEventsPurged, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnEntitlementDenied); ok {
		r.onEntitlementDenied = append(r.onEntitlementDenied, v)
	}
	if v, ok := p.(OnCheckoutStarted); ok {
		r.onCheckoutStarted = append(r.onCheckoutStarted, v)
	}
	if v, ok := p.(OnCancellationRequested); ok {
		r.onCancellationRequested = append(r.onCancellationRequested, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitSubscriptionCreated calls OnSubscriptionCreated hooks.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, rec interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSubscriptionCreated", func() error {
			return p.OnSubscriptionCreated(ctx, rec)
		})
	}
}

// EmitSubscriptionUpdated calls OnSubscriptionUpdated hooks.
func (r *Registry) EmitSubscriptionUpdated(ctx context.Context, rec interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSubscriptionUpdated", func() error {
			return p.OnSubscriptionUpdated(ctx, rec)
		})
	}
}

// EmitSubscriptionRemoved calls OnSubscriptionRemoved hooks.
func (r *Registry) EmitSubscriptionRemoved(ctx context.Context, principalID string) {
	r.mu.RLock()
	plugins := r.onSubscriptionRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSubscriptionRemoved", func() error {
			return p.OnSubscriptionRemoved(ctx, principalID)
		})
	}
}

// EmitEventStale calls OnEventStale hooks.
func (r *Registry) EmitEventStale(ctx context.Context, principalID, eventID string) {
	r.mu.RLock()
	plugins := r.onEventStale
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventStale", func() error {
			return p.OnEventStale(ctx, principalID, eventID)
		})
	}
}

// EmitEventDuplicate calls OnEventDuplicate hooks.
func (r *Registry) EmitEventDuplicate(ctx context.Context, eventID string) {
	r.mu.RLock()
	plugins := r.onEventDuplicate
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventDuplicate", func() error {
			return p.OnEventDuplicate(ctx, eventID)
		})
	}
}

// EmitEventUnrecognized calls OnEventUnrecognized hooks.
func (r *Registry) EmitEventUnrecognized(ctx context.Context, eventType string) {
	r.mu.RLock()
	plugins := r.onEventUnrecognized
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventUnrecognized", func() error {
			return p.OnEventUnrecognized(ctx, eventType)
		})
	}
}

// EmitEventsPurged calls OnEventsPurged hooks.
func (r *Registry) EmitEventsPurged(ctx context.Context, count int64, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onEventsPurged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventsPurged", func() error {
			return p.OnEventsPurged(ctx, count, elapsed)
		})
	}
}

// EmitEntitlementChecked calls OnEntitlementChecked hooks.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, decision interface{}) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEntitlementChecked", func() error {
			return p.OnEntitlementChecked(ctx, decision)
		})
	}
}

// EmitEntitlementDenied calls OnEntitlementDenied hooks.
func (r *Registry) EmitEntitlementDenied(ctx context.Context, principalID, reason string) {
	r.mu.RLock()
	plugins := r.onEntitlementDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEntitlementDenied", func() error {
			return p.OnEntitlementDenied(ctx, principalID, reason)
		})
	}
}

// EmitCheckoutStarted calls OnCheckoutStarted hooks.
func (r *Registry) EmitCheckoutStarted(ctx context.Context, principalID string) {
	r.mu.RLock()
	plugins := r.onCheckoutStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnCheckoutStarted", func() error {
			return p.OnCheckoutStarted(ctx, principalID)
		})
	}
}

// EmitCancellationRequested calls OnCancellationRequested hooks.
func (r *Registry) EmitCancellationRequested(ctx context.Context, principalID string) {
	r.mu.RLock()
	plugins := r.onCancellationRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnCancellationRequested", func() error {
			return p.OnCancellationRequested(ctx, principalID)
		})
	}
}

// EmitWebhookReceived calls OnWebhookReceived hooks.
func (r *Registry) EmitWebhookReceived(ctx context.Context, eventID string) {
	r.mu.RLock()
	plugins := r.onWebhookReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnWebhookReceived", func() error {
			return p.OnWebhookReceived(ctx, eventID)
		})
	}
}

// call invokes a hook with a bounded timeout and logs failures instead of
// propagating them: plugin errors never affect reconciliation outcomes.
func (r *Registry) call(ctx context.Context, name, hook string, fn func() error) {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("plugin hook failed",
				"plugin", name,
				"hook", hook,
				"error", err,
			)
		}
	case <-timer.C:
		r.logger.Warn("plugin hook timed out",
			"plugin", name,
			"hook", hook,
			"timeout", callTimeout,
		)
	case <-ctx.Done():
		r.logger.Warn("plugin hook canceled",
			"plugin", name,
			"hook", hook,
			"error", ctx.Err(),
		)
	}
}
