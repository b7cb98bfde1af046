package session

import (
	"context"

	"tenancy-backend/internal/models"
)

type identityKey struct{}

// WithIdentity returns a context carrying a request-scoped identity, as
// resolved by the HTTP auth middleware.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity carried by ctx, or nil.
func IdentityFrom(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(identityKey{}).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}
