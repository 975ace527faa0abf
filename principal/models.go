package principal

import (
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/types"
)

// Principal is an authenticated account identity. The ID is minted at
// registration and immutable thereafter.
type Principal struct {
	types.Entity
	ID    id.PrincipalID `json:"id"`
	Email string         `json:"email"`

	// PasswordHash is the bcrypt hash of the account password.
	// Never serialized to clients.
	PasswordHash []byte `json:"-"`
}
