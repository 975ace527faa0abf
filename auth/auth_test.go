package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/auth"
	"github.com/xraph/turnstile/id"
)

var secret = []byte("test-secret-do-not-use-in-production")

func TestIssueVerifyRoundTrip(t *testing.T) {
	a := auth.New(secret)
	pid := id.NewPrincipalID()

	token, err := a.Issue(pid)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.String() != pid.String() {
		t.Errorf("principal: got %q, want %q", got, pid)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	a := auth.New(secret)
	token, err := a.Issue(id.NewPrincipalID())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"truncated", token[:len(token)-10]},
		{"flipped byte", token[:len(token)-1] + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Verify(tt.token); !errors.Is(err, turnstile.ErrAuthentication) {
				t.Errorf("Verify(%q): got %v, want ErrAuthentication", tt.name, err)
			}
		})
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := auth.New(secret)
	verifier := auth.New([]byte("a different secret"))

	token, err := issuer.Issue(id.NewPrincipalID())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, turnstile.ErrAuthentication) {
		t.Errorf("cross-secret verify: got %v, want ErrAuthentication", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base

	a := auth.New(secret,
		auth.WithTokenTTL(time.Hour),
		auth.WithClock(func() time.Time { return now }),
	)

	token, err := a.Issue(id.NewPrincipalID())
	if err != nil {
		t.Fatal(err)
	}

	now = base.Add(30 * time.Minute)
	if _, err := a.Verify(token); err != nil {
		t.Fatalf("verify before expiry: %v", err)
	}

	now = base.Add(2 * time.Hour)
	if _, err := a.Verify(token); !errors.Is(err, turnstile.ErrAuthentication) {
		t.Errorf("verify after expiry: got %v, want ErrAuthentication", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	// Minimum cost keeps the test fast.
	a := auth.New(secret, auth.WithBcryptCost(4))

	hash, err := a.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if err := a.CheckPassword(hash, "hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := a.CheckPassword(hash, "wrong"); !errors.Is(err, turnstile.ErrAuthentication) {
		t.Errorf("wrong password: got %v, want ErrAuthentication", err)
	}
}
