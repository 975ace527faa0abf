package extension

import "time"

// Config holds the Turnstile extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.turnstile" or "turnstile"
// keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ProviderTimeout bounds outbound billing-provider calls (default: 10s).
	ProviderTimeout time.Duration `json:"provider_timeout" mapstructure:"provider_timeout" yaml:"provider_timeout"`

	// EventRetention is how long applied-event dedup entries are kept
	// before the retention worker purges them (default: 720h).
	EventRetention time.Duration `json:"event_retention" mapstructure:"event_retention" yaml:"event_retention"`

	// PurgeInterval is how often the retention worker runs (default: 1h).
	PurgeInterval time.Duration `json:"purge_interval" mapstructure:"purge_interval" yaml:"purge_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout: 10 * time.Second,
		EventRetention:  30 * 24 * time.Hour,
		PurgeInterval:   time.Hour,
	}
}
