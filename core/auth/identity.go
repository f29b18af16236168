package auth

import (
	"context"

	"github.com/imusici/accademia/core"
)

var (
	ErrInvalidExternalSession = core.NewError(core.KindUnauthenticated, "invalid external session")
	ErrIdentityUnavailable    = core.NewError(core.KindUpstream, "identity provider unavailable")
)

// Identity is a verified external identity.
type Identity struct {
	Email   string `json:"email"`
	Subject string `json:"sub"`
}

// IdentityProvider exchanges an opaque session handle for a verified external identity.
// Any non-success response from the provider yields ErrInvalidExternalSession;
// transport failures and malformed responses yield ErrIdentityUnavailable.
type IdentityProvider interface {
	Resolve(ctx context.Context, handle string) (Identity, error)
}
