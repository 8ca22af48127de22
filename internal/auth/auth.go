// Package auth is the authentication collaborator: it turns a credential
// proof into an opaque verified user identity. The routing engine never
// sees passwords or token internals.
package auth

import "context"

// Identity is the verified durable user identity.
type Identity struct {
	UserID      string
	DisplayName string
	Roles       []string
}

// Verifier validates a credential proof.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
