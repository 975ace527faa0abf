// Package httpapi exposes the engine over HTTP: session auth endpoints,
// the subscription status and initiator routes, the provider webhook,
// and the entitlement-gated content route.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/auth"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/principal"
	"github.com/xraph/turnstile/provider"
	"github.com/xraph/turnstile/store"
	"github.com/xraph/turnstile/subscription"
	"github.com/xraph/turnstile/types"
)

const (
	// authCookie carries the session JWT, httpOnly so scripts never see it.
	authCookie = "auth_token"

	sessionTTL = 7 * 24 * time.Hour

	// maxBodyBytes bounds request bodies, webhook payloads included.
	maxBodyBytes = 1 << 16

	minPasswordLen = 8
)

// Config carries the handler settings that are not injectable services.
type Config struct {
	// SuccessURL and CancelURL are the checkout redirect targets.
	SuccessURL string
	CancelURL  string

	// SecureCookies marks session cookies Secure; enable behind TLS.
	SecureCookies bool
}

// Handler serves the Turnstile HTTP API.
type Handler struct {
	engine *turnstile.Engine
	store  store.Store
	auth   *auth.Authenticator
	prov   provider.Provider
	logger *slog.Logger
	cfg    Config
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// New creates the API handler. The provider is used only to parse and
// verify webhook payloads; all ledger mutation goes through the engine.
func New(engine *turnstile.Engine, s store.Store, a *auth.Authenticator, p provider.Provider, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		store:  s,
		auth:   a,
		prov:   p,
		logger: slog.Default(),
		cfg:    cfg,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes builds the chi router for the full API surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook", h.handleWebhook)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)
			r.Post("/logout", h.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/subscription", h.handleSubscription)
			r.Post("/checkout", h.handleCheckout)
			r.Post("/subscription/cancel", h.handleCancel)
			r.Get("/content", h.handleContent)
		})
	})

	return r
}

// ──────────────────────────────────────────────────
// Auth endpoints
// ──────────────────────────────────────────────────

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type principalResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	p := &principal.Principal{
		Entity:       types.NewEntity(),
		ID:           id.NewPrincipalID(),
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.store.CreatePrincipal(r.Context(), p); err != nil {
		if errors.Is(err, turnstile.ErrPrincipalExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("failed to create principal", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if err := h.startSession(w, p.ID); err != nil {
		h.logger.Error("failed to issue session token", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.logger.Info("principal registered", "principal_id", p.ID.String())
	writeJSON(w, http.StatusCreated, principalResponse{ID: p.ID.String(), Email: p.Email})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	p, err := h.store.GetPrincipalByEmail(r.Context(), req.Email)
	if err != nil {
		if turnstile.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("failed to load principal", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := h.auth.CheckPassword(p.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.startSession(w, p.ID); err != nil {
		h.logger.Error("failed to issue session token", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, principalResponse{ID: p.ID.String(), Email: p.Email})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) startSession(w http.ResponseWriter, principalID id.PrincipalID) error {
	token, err := h.auth.Issue(principalID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ──────────────────────────────────────────────────
// Subscription endpoints
// ──────────────────────────────────────────────────

type subscriptionResponse struct {
	Entitled     bool                 `json:"entitled"`
	Reason       string               `json:"reason,omitempty"`
	Subscription *subscription.Public `json:"subscription"`
}

func (h *Handler) handleSubscription(w http.ResponseWriter, r *http.Request) {
	principalID := principalFrom(r.Context())

	decision, err := h.engine.Entitled(r.Context(), principalID)
	if err != nil {
		h.logger.Error("entitlement check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "subscription lookup failed")
		return
	}

	resp := subscriptionResponse{Entitled: decision.Allowed, Reason: decision.Reason}
	if rec, err := h.engine.Subscription(r.Context(), principalID); err == nil {
		pub := rec.Public()
		resp.Subscription = &pub
	} else if !errors.Is(err, turnstile.ErrNoSubscription) {
		h.logger.Error("subscription lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "subscription lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	principalID := principalFrom(r.Context())

	p, err := h.store.GetPrincipal(r.Context(), principalID)
	if err != nil {
		h.logger.Error("failed to load principal", "error", err)
		writeError(w, http.StatusInternalServerError, "checkout failed")
		return
	}

	checkout, err := h.engine.StartCheckout(r.Context(), provider.CheckoutParams{
		PrincipalID: principalID,
		Email:       p.Email,
		SuccessURL:  h.cfg.SuccessURL,
		CancelURL:   h.cfg.CancelURL,
	})
	if err != nil {
		h.logger.Error("checkout failed", "error", err, "principal_id", principalID.String())
		writeError(w, http.StatusBadGateway, "checkout is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": checkout.URL})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principalID := principalFrom(r.Context())

	err := h.engine.RequestCancellation(r.Context(), principalID)
	switch {
	case err == nil:
	case errors.Is(err, turnstile.ErrNoSubscription):
		writeError(w, http.StatusNotFound, "no subscription to cancel")
		return
	default:
		h.logger.Error("cancellation failed", "error", err, "principal_id", principalID.String())
		writeError(w, http.StatusBadGateway, "cancellation is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "cancellation scheduled; access continues until the end of the billing period",
	})
}

// ──────────────────────────────────────────────────
// Webhook
// ──────────────────────────────────────────────────

// handleWebhook receives provider lifecycle events. A signature failure
// is the only 4xx; everything the reconciler classifies as stale,
// duplicate, or unrecognized is acknowledged with 200 so the provider
// stops redelivering it.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.prov.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, turnstile.ErrSignatureInvalid) {
			h.logger.Warn("rejected webhook with bad signature", "error", err)
			writeError(w, http.StatusBadRequest, "signature verification failed")
			return
		}
		h.logger.Warn("failed to parse webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	result, err := h.engine.ApplyEvent(r.Context(), ev)
	if err != nil {
		// A store failure is the one case where a retry can help.
		h.logger.Error("failed to apply webhook event", "error", err, "event_id", ev.Meta().ID)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true", "result": string(result)})
}

// ──────────────────────────────────────────────────
// Gated content
// ──────────────────────────────────────────────────

func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	principalID := principalFrom(r.Context())

	decision, err := h.engine.Entitled(r.Context(), principalID)
	if err != nil {
		h.logger.Error("entitlement check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "content unavailable")
		return
	}
	if !decision.Allowed {
		writeError(w, http.StatusForbidden, "an active subscription is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title": "Member content",
		"items": []string{
			"Exclusive article: scaling event-driven billing",
			"Video series: reconciliation patterns in practice",
			"Monthly industry report",
		},
	})
}

// ──────────────────────────────────────────────────
// Health
// ──────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("store ping failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
