package extension

import (
	"time"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/plugin"
	"github.com/xraph/turnstile/provider"
	"github.com/xraph/turnstile/store"
)

// Option configures the Turnstile Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a turnstile.Option through to the underlying
// engine.
func WithEngineOption(opt turnstile.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a turnstile plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, turnstile.WithPlugin(p))
	}
}

// WithProvider sets the billing provider for the engine.
func WithProvider(p provider.Provider) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, turnstile.WithProvider(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithProviderTimeout bounds outbound billing-provider calls.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ProviderTimeout = d }
}

// WithEventRetention sets how long applied-event dedup entries are kept.
func WithEventRetention(d time.Duration) Option {
	return func(e *Extension) { e.config.EventRetention = d }
}

// WithPurgeInterval sets how often the retention worker runs.
func WithPurgeInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.PurgeInterval = d }
}
