// Package authn is the credential boundary: email+password accounts, opaque
// bearer tokens, password reset and session revocation.
package authn

import (
	"context"

	"tenancy-backend/internal/models"
)

// RevocationChannel is the redis pub/sub channel carrying revoked identity
// ids. Session managers subscribe to it to observe external invalidation.
const RevocationChannel = "auth:events"

// Service is the credential service boundary.
type Service interface {
	// CreateAccount registers a new email+password account. Fails with a
	// credential error on a duplicate email or a password below the
	// configured minimum length.
	CreateAccount(ctx context.Context, email, password string) (*models.Identity, error)
	// Authenticate validates credentials. Fails with a credential error
	// on mismatch and a storage error on transport failure.
	Authenticate(ctx context.Context, email, password string) (*models.Identity, error)
	// IssueToken mints a bearer token for an identity.
	IssueToken(identityID string) (string, error)
	// VerifyToken resolves a bearer token to its identity, rejecting
	// revoked sessions.
	VerifyToken(ctx context.Context, token string) (*models.Identity, error)
	// SendPasswordReset issues a single-use reset token for the account
	// with the given email. Fire-and-forget from the caller's point of
	// view: only issuance success or failure is reported.
	SendPasswordReset(ctx context.Context, email string) error
	// ResetPassword consumes a reset token and replaces the password.
	ResetPassword(ctx context.Context, token, newPassword string) error
	// Revoke invalidates every outstanding session of an identity and
	// announces it on RevocationChannel.
	Revoke(ctx context.Context, identityID string) error
}
