// Package extension provides the Forge extension adapter for Turnstile.
//
// It implements the forge.Extension interface to integrate Turnstile
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.turnstile" or
// "turnstile" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "turnstile"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription-gated access control engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Turnstile as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *turnstile.Engine
	store      store.Store
	engineOpts []turnstile.Option
}

// New creates a new Turnstile Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Turnstile instance.
// This is nil until Register is called.
func (e *Extension) Engine() *turnstile.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := turnstile.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*turnstile.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("turnstile: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("turnstile: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs turnstile.Option values from the resolved
// config.
func (e *Extension) buildEngineOpts() []turnstile.Option {
	opts := make([]turnstile.Option, 0, len(e.engineOpts)+3)

	if e.config.ProviderTimeout > 0 {
		opts = append(opts, turnstile.WithProviderTimeout(e.config.ProviderTimeout))
	}
	if e.config.EventRetention > 0 {
		opts = append(opts, turnstile.WithEventRetention(e.config.EventRetention))
	}
	if e.config.PurgeInterval > 0 {
		opts = append(opts, turnstile.WithPurgeInterval(e.config.PurgeInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("turnstile: configuration is required but not found in config files; " +
				"ensure 'extensions.turnstile' or 'turnstile' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("turnstile: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("provider_timeout", e.config.ProviderTimeout),
		forge.F("event_retention", e.config.EventRetention),
		forge.F("purge_interval", e.config.PurgeInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.turnstile" first (namespaced pattern).
	if cm.IsSet("extensions.turnstile") {
		if err := cm.Bind("extensions.turnstile", &cfg); err == nil {
			e.Logger().Debug("turnstile: loaded config from file",
				forge.F("key", "extensions.turnstile"),
			)
			return cfg, true
		}
		e.Logger().Warn("turnstile: failed to bind extensions.turnstile config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "turnstile" key.
	if cm.IsSet("turnstile") {
		if err := cm.Bind("turnstile", &cfg); err == nil {
			e.Logger().Debug("turnstile: loaded config from file",
				forge.F("key", "turnstile"),
			)
			return cfg, true
		}
		e.Logger().Warn("turnstile: failed to bind turnstile config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = defaults.ProviderTimeout
	}
	if cfg.EventRetention == 0 {
		cfg.EventRetention = defaults.EventRetention
	}
	if cfg.PurgeInterval == 0 {
		cfg.PurgeInterval = defaults.PurgeInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags
// fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.ProviderTimeout == 0 && programmaticConfig.ProviderTimeout != 0 {
		yamlConfig.ProviderTimeout = programmaticConfig.ProviderTimeout
	}
	if yamlConfig.EventRetention == 0 && programmaticConfig.EventRetention != 0 {
		yamlConfig.EventRetention = programmaticConfig.EventRetention
	}
	if yamlConfig.PurgeInterval == 0 && programmaticConfig.PurgeInterval != 0 {
		yamlConfig.PurgeInterval = programmaticConfig.PurgeInterval
	}

	return e.mergeWithDefaults(yamlConfig)
}
