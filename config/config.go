// Package config loads the turnstiled server configuration from a YAML
// file with TURNSTILE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full turnstiled configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	SecureCookies bool          `yaml:"secure_cookies"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `yaml:"driver"`
	// DSN is the connection string; a file path for sqlite.
	DSN string `yaml:"dsn"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// StripeConfig carries the billing-provider credentials and the single
// price offered at checkout.
type StripeConfig struct {
	APIKey        string      `yaml:"api_key"`
	WebhookSecret string      `yaml:"webhook_secret"`
	Price         PriceConfig `yaml:"price"`
}

// PriceConfig describes the subscription price.
type PriceConfig struct {
	Currency    string `yaml:"currency"`
	AmountCents int64  `yaml:"amount_cents"`
	Interval    string `yaml:"interval"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// CheckoutConfig carries the hosted-checkout redirect targets.
type CheckoutConfig struct {
	SuccessURL string `yaml:"success_url"`
	CancelURL  string `yaml:"cancel_url"`
}

// EventsConfig tunes the applied-event retention worker.
type EventsConfig struct {
	Retention     time.Duration `yaml:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// Default returns the configuration used when no file or overrides are
// given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			ShutdownGrace: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Stripe: StripeConfig{
			Price: PriceConfig{
				Currency:    "usd",
				AmountCents: 4999,
				Interval:    "month",
				Name:        "Premium Subscription",
				Description: "Unlimited access to premium content",
			},
		},
		Checkout: CheckoutConfig{
			SuccessURL: "http://localhost:8080/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  "http://localhost:8080/cancel",
		},
		Events: EventsConfig{
			Retention:     30 * 24 * time.Hour,
			PurgeInterval: time.Hour,
		},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString(&c.Server.Addr, "TURNSTILE_ADDR")
	setString(&c.Store.Driver, "TURNSTILE_STORE_DRIVER")
	setString(&c.Store.DSN, "TURNSTILE_STORE_DSN")
	setString(&c.Auth.Secret, "TURNSTILE_AUTH_SECRET")
	setString(&c.Stripe.APIKey, "TURNSTILE_STRIPE_API_KEY")
	setString(&c.Stripe.WebhookSecret, "TURNSTILE_STRIPE_WEBHOOK_SECRET")
	setString(&c.Checkout.SuccessURL, "TURNSTILE_CHECKOUT_SUCCESS_URL")
	setString(&c.Checkout.CancelURL, "TURNSTILE_CHECKOUT_CANCEL_URL")

	if v, ok := os.LookupEnv("TURNSTILE_SECURE_COOKIES"); ok {
		c.Server.SecureCookies = v == "true" || v == "1"
	}
}

// Validate reports configuration errors before startup instead of at
// first use.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %q requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("config: auth.secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive")
	}

	if c.Stripe.Price.AmountCents <= 0 {
		return fmt.Errorf("config: stripe.price.amount_cents must be positive")
	}

	return nil
}
