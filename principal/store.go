package principal

import (
	"context"

	"github.com/xraph/turnstile/id"
)

// Store is the principal slice of the storage contract.
type Store interface {
	Create(ctx context.Context, p *Principal) error
	Get(ctx context.Context, principalID id.PrincipalID) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
}
