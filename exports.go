package turnstile

import (
	"github.com/xraph/turnstile/id"
	"github.com/xraph/turnstile/types"
)

// Re-export common types for convenience so users don't have to import
// the leaf packages.

// ID is the primary identifier type for Turnstile entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// Entity is re-exported from the types package.
type Entity = types.Entity

// NewEntity is re-exported from the types package.
var NewEntity = types.NewEntity
