package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnstile.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: test-secret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("driver: got %q", cfg.Store.Driver)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("token_ttl: got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Stripe.Price.AmountCents != 4999 || cfg.Stripe.Price.Interval != "month" {
		t.Errorf("default price: %+v", cfg.Stripe.Price)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  secure_cookies: true
store:
  driver: sqlite
  dsn: /var/lib/turnstile/turnstile.db
auth:
  secret: file-secret
  token_ttl: 48h
stripe:
  api_key: sk_test_123
  webhook_secret: whsec_456
  price:
    currency: eur
    amount_cents: 2999
    interval: month
    name: Premium
checkout:
  success_url: https://app.example.com/done
  cancel_url: https://app.example.com/back
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9090" || !cfg.Server.SecureCookies {
		t.Errorf("server: %+v", cfg.Server)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/var/lib/turnstile/turnstile.db" {
		t.Errorf("store: %+v", cfg.Store)
	}
	if cfg.Auth.TokenTTL != 48*time.Hour {
		t.Errorf("token_ttl: got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Stripe.Price.Currency != "eur" || cfg.Stripe.Price.AmountCents != 2999 {
		t.Errorf("price: %+v", cfg.Stripe.Price)
	}
	if cfg.Checkout.SuccessURL != "https://app.example.com/done" {
		t.Errorf("success_url: got %q", cfg.Checkout.SuccessURL)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: file-secret\n")

	t.Setenv("TURNSTILE_ADDR", ":7777")
	t.Setenv("TURNSTILE_AUTH_SECRET", "env-secret")
	t.Setenv("TURNSTILE_STORE_DRIVER", "postgres")
	t.Setenv("TURNSTILE_STORE_DSN", "postgres://localhost/turnstile")
	t.Setenv("TURNSTILE_SECURE_COOKIES", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("secret: got %q", cfg.Auth.Secret)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://localhost/turnstile" {
		t.Errorf("store: %+v", cfg.Store)
	}
	if !cfg.Server.SecureCookies {
		t.Error("secure_cookies override not applied")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.Secret = "" }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, true},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, true},
		{"zero price", func(c *Config) { c.Stripe.Price.AmountCents = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.Secret = "test-secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
