package turnstile

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("turnstile: not found")
	ErrAlreadyExists = errors.New("turnstile: already exists")
	ErrInvalidInput  = errors.New("turnstile: invalid input")

	// Authentication / authorization errors
	ErrAuthentication = errors.New("turnstile: authentication failed")
	ErrNoEntitlement  = errors.New("turnstile: no entitlement")

	// Principal errors
	ErrPrincipalNotFound = errors.New("turnstile: principal not found")
	ErrPrincipalExists   = errors.New("turnstile: principal already exists")

	// Ledger / reconciliation errors
	ErrNoSubscription    = errors.New("turnstile: no subscription record")
	ErrStaleEvent        = errors.New("turnstile: stale event rejected")
	ErrDuplicateEvent    = errors.New("turnstile: duplicate event")
	ErrUnrecognizedEvent = errors.New("turnstile: unrecognized event type")

	// Provider errors
	ErrSignatureInvalid    = errors.New("turnstile: webhook signature verification failed")
	ErrProviderUnavailable = errors.New("turnstile: billing provider unavailable")
	ErrOutcomeUnknown      = errors.New("turnstile: provider call outcome unknown")
	ErrProviderNotSet      = errors.New("turnstile: no billing provider configured")

	// Store errors
	ErrStoreClosed     = errors.New("turnstile: store is closed")
	ErrMigrationFailed = errors.New("turnstile: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("turnstile: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPrincipalNotFound) ||
		errors.Is(err, ErrNoSubscription)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried by the caller. Reconciliation outcomes (stale, duplicate,
// unrecognized) are deliberately not retryable: the ordering and
// idempotency rules already resolved them.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrOutcomeUnknown) ||
		errors.Is(err, ErrStoreClosed)
}
