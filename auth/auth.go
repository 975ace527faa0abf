// Package auth issues and validates the bearer credentials that bind a
// request to a principal identifier.
//
// Tokens are HS256 JWTs carried in an httpOnly cookie. The engine trusts
// this package's verdict; everything downstream of Verify works with the
// principal ID alone.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xraph/turnstile"
	"github.com/xraph/turnstile/id"
)

// DefaultTokenTTL matches the 7-day session length of the hosted site.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Authenticator issues and verifies session tokens.
type Authenticator struct {
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithTokenTTL sets the token lifetime.
func WithTokenTTL(d time.Duration) AuthOption {
	return func(a *Authenticator) { a.tokenTTL = d }
}

// WithBcryptCost sets the bcrypt work factor for password hashing.
func WithBcryptCost(cost int) AuthOption {
	return func(a *Authenticator) { a.bcryptCost = cost }
}

// WithClock sets the time source, for expiry tests.
func WithClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) { a.now = now }
}

// New creates an Authenticator signing with the given secret.
func New(secret []byte, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		secret:     secret,
		tokenTTL:   DefaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue creates a signed session token for the principal.
func (a *Authenticator) Issue(principalID id.PrincipalID) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns the bound principal ID.
// All failure modes collapse into ErrAuthentication; the cause is not
// surfaced to callers.
func (a *Authenticator) Verify(tokenString string) (id.PrincipalID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %v", turnstile.ErrAuthentication, err)
	}

	principalID, err := id.ParsePrincipalID(claims.Subject)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: bad subject: %v", turnstile.ErrAuthentication, err)
	}
	return principalID, nil
}

// HashPassword returns the bcrypt hash of a plaintext password.
func (a *Authenticator) HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return hash, nil
}

// CheckPassword compares a plaintext password against a stored hash.
func (a *Authenticator) CheckPassword(hash []byte, password string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return fmt.Errorf("%w: %v", turnstile.ErrAuthentication, err)
	}
	return nil
}
