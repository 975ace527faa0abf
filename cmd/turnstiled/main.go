// Command turnstiled runs the Turnstile subscription access-control
// server: the reconciliation engine, the HTTP API, and the provider
// webhook endpoint in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/audithook"
	"github.com/xraph/turnstile/auth"
	"github.com/xraph/turnstile/config"
	"github.com/xraph/turnstile/httpapi"
	"github.com/xraph/turnstile/observability"
	"github.com/xraph/turnstile/observability/prom"
	"github.com/xraph/turnstile/provider/stripe"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/store/memory"
	"github.com/xraph/turnstile/store/postgres"
	"github.com/xraph/turnstile/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("turnstiled exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	prov := stripe.New(cfg.Stripe.APIKey, cfg.Stripe.WebhookSecret, stripe.Price{
		Currency:    cfg.Stripe.Price.Currency,
		AmountCents: cfg.Stripe.Price.AmountCents,
		Interval:    cfg.Stripe.Price.Interval,
		Name:        cfg.Stripe.Price.Name,
		Description: cfg.Stripe.Price.Description,
	})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(prom.New(registry))
	audit := audithook.New(nil, audithook.WithLogger(logger))

	engine := turnstile.New(st,
		turnstile.WithLogger(logger),
		turnstile.WithProvider(prov),
		turnstile.WithPlugin(metrics),
		turnstile.WithPlugin(audit),
		turnstile.WithEventRetention(cfg.Events.Retention),
		turnstile.WithPurgeInterval(cfg.Events.PurgeInterval),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	authenticator := auth.New([]byte(cfg.Auth.Secret), auth.WithTokenTTL(cfg.Auth.TokenTTL))

	api := httpapi.New(engine, st, authenticator, prov, httpapi.Config{
		SuccessURL:    cfg.Checkout.SuccessURL,
		CancelURL:     cfg.Checkout.CancelURL,
		SecureCookies: cfg.Server.SecureCookies,
	}, httpapi.WithLogger(logger))

	router := api.Routes()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("turnstiled listening", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced server shutdown", "error", err)
	}

	// Engine.Stop closes the store.
	return engine.Stop()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
