package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/auth"
	"github.com/xraph/turnstile/event"
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/provider"
	"github.com/xraph/turnstile/store/memory"
	"github.com/xraph/turnstile/subscription"
)

type fixture struct {
	handler *Handler
	server  *httptest.Server
	engine  *turnstile.Engine
	store   *memory.Store
	mock    *provider.Mock
	client  *http.Client
}

func newFixture(t *testing.T, engineOpts ...turnstile.Option) *fixture {
	t.Helper()

	s := memory.New()
	mock := provider.NewMock()
	opts := append([]turnstile.Option{turnstile.WithProvider(mock)}, engineOpts...)
	eng := turnstile.New(s, opts...)
	a := auth.New([]byte("test-secret"), auth.WithBcryptCost(4))

	h := New(eng, s, a, mock, Config{
		SuccessURL: "https://example.com/success",
		CancelURL:  "https://example.com/cancel",
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	jar := newCookieJar(t)
	return &fixture{
		handler: h,
		server:  srv,
		engine:  eng,
		store:   s,
		mock:    mock,
		client:  &http.Client{Jar: jar},
	}
}

func newCookieJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return jar
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.client.Post(f.server.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	resp := f.postJSON(t, "/api/auth/register", credentialsRequest{Email: email, Password: "hunter2hunter2"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	var out principalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestRegisterLoginLogout(t *testing.T) {
	f := newFixture(t)

	pidStr := f.register(t, "cadet@example.com")
	if _, err := id.ParsePrincipalID(pidStr); err != nil {
		t.Fatalf("register returned bad principal ID %q: %v", pidStr, err)
	}

	// Registration set a session cookie; the status route must work.
	resp := f.get(t, "/api/subscription")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscription after register: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Duplicate registration conflicts.
	resp = f.postJSON(t, "/api/auth/register", credentialsRequest{Email: "cadet@example.com", Password: "hunter2hunter2"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.postJSON(t, "/api/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.get(t, "/api/subscription")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("subscription after logout: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Log back in.
	resp = f.postJSON(t, "/api/auth/login", credentialsRequest{Email: "cadet@example.com", Password: "hunter2hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.get(t, "/api/subscription")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("subscription after login: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "cadet@example.com")

	tests := []struct {
		name string
		req  credentialsRequest
	}{
		{"wrong password", credentialsRequest{Email: "cadet@example.com", Password: "not-the-password"}},
		{"unknown email", credentialsRequest{Email: "ghost@example.com", Password: "hunter2hunter2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.postJSON(t, "/api/auth/login", tt.req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status: got %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  credentialsRequest
	}{
		{"missing email", credentialsRequest{Password: "hunter2hunter2"}},
		{"malformed email", credentialsRequest{Email: "not-an-email", Password: "hunter2hunter2"}},
		{"short password", credentialsRequest{Email: "cadet@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.postJSON(t, "/api/auth/register", tt.req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/subscription"},
		{http.MethodPost, "/api/checkout"},
		{http.MethodPost, "/api/subscription/cancel"},
		{http.MethodGet, "/api/content"},
	}

	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			req, err := http.NewRequest(p.method, f.server.URL+p.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status: got %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "cadet@example.com")

	resp := f.postJSON(t, "/api/checkout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: status %d", resp.StatusCode)
	}
	out := decodeBody[map[string]string](t, resp)
	if out["url"] == "" {
		t.Error("checkout response carries no redirect URL")
	}
	if len(f.mock.Checkouts) != 1 {
		t.Fatalf("provider calls: got %d, want 1", len(f.mock.Checkouts))
	}
	if got := f.mock.Checkouts[0].Email; got != "cadet@example.com" {
		t.Errorf("checkout email: got %q", got)
	}
	if f.mock.Checkouts[0].SuccessURL != "https://example.com/success" {
		t.Errorf("success URL: got %q", f.mock.Checkouts[0].SuccessURL)
	}
}

func TestCheckoutProviderDown(t *testing.T) {
	f := newFixture(t)
	f.register(t, "cadet@example.com")
	f.mock.CreateCheckoutErr = fmt.Errorf("connection refused")

	resp := f.postJSON(t, "/api/checkout", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", resp.StatusCode)
	}
}

func TestCancelWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	f.register(t, "cadet@example.com")

	resp := f.postJSON(t, "/api/subscription/cancel", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestSubscriptionAndContentAfterActivation(t *testing.T) {
	f := newFixture(t)
	pidStr := f.register(t, "cadet@example.com")
	pid, err := id.ParsePrincipalID(pidStr)
	if err != nil {
		t.Fatal(err)
	}

	// Content is gated before any subscription exists.
	resp := f.get(t, "/api/content")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("content without subscription: status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	now := time.Now().UTC()
	_, err = f.engine.ApplyEvent(t.Context(), event.Created{
		EventMeta: event.Meta{ID: "evt_1", PrincipalID: pid, OccurredAt: now},
		Subscription: event.Snapshot{
			ProviderSubscriptionID: "sub_prov",
			ProviderCustomerID:     "cus_prov",
			Status:                 subscription.StatusActive,
			PeriodStart:            now,
			PeriodEnd:              now.Add(30 * 24 * time.Hour),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp = f.get(t, "/api/subscription")
	status := decodeBody[subscriptionResponse](t, resp)
	if !status.Entitled {
		t.Errorf("not entitled after activation: %+v", status)
	}
	if status.Subscription == nil || status.Subscription.Status != subscription.StatusActive {
		t.Errorf("subscription payload: %+v", status.Subscription)
	}

	resp = f.get(t, "/api/content")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("content with active subscription: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Cancellation acks without mutating the record.
	resp = f.postJSON(t, "/api/subscription/cancel", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel: status %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()
	if len(f.mock.Cancellations) != 1 {
		t.Fatalf("cancellations: got %d, want 1", len(f.mock.Cancellations))
	}

	resp = f.get(t, "/api/content")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("content after deferred cancel: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	pid := id.NewPrincipalID()
	now := time.Now().UTC()

	f.mock.ParseFn = func(payload []byte, sigHeader string) (event.Event, error) {
		if sigHeader != "valid-signature" {
			return nil, fmt.Errorf("%w: bad header", turnstile.ErrSignatureInvalid)
		}
		return event.Created{
			EventMeta: event.Meta{ID: "evt_hook", PrincipalID: pid, OccurredAt: now},
			Subscription: event.Snapshot{
				ProviderSubscriptionID: "sub_prov",
				Status:                 subscription.StatusActive,
				PeriodStart:            now,
				PeriodEnd:              now.Add(30 * 24 * time.Hour),
			},
		}, nil
	}

	post := func(sig string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/webhook", bytes.NewReader([]byte(`{}`)))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Stripe-Signature", sig)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	// Bad signature rejected so the provider retries.
	resp := post("forged")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("forged signature: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post("valid-signature")
	out := decodeBody[map[string]string](t, resp)
	if resp.StatusCode != http.StatusOK || out["result"] != "applied" {
		t.Errorf("valid webhook: status %d result %q", resp.StatusCode, out["result"])
	}

	// Redelivery is acknowledged, not reapplied.
	resp = post("valid-signature")
	out = decodeBody[map[string]string](t, resp)
	if resp.StatusCode != http.StatusOK || out["result"] != "duplicate" {
		t.Errorf("redelivered webhook: status %d result %q", resp.StatusCode, out["result"])
	}

	rec, err := f.engine.Subscription(t.Context(), pid)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != subscription.StatusActive {
		t.Errorf("status: got %q, want active", rec.Status)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/healthz")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}
