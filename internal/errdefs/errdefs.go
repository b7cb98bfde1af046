package errdefs

import (
	"errors"
	"fmt"

	"tenancy-backend/internal/models"
)

// Sentinel errors shared across the session, gateway and storage layers.
// Callers classify failures with errors.Is and the predicate helpers below.
var (
	// ErrCredential covers bad or duplicate credentials: sign-in mismatch,
	// already-registered email, password below the configured minimum.
	ErrCredential = errors.New("invalid credentials")

	// ErrAuth means the operation requires an identity that is absent, or
	// the caller is not the owner of the record it tried to touch.
	ErrAuth = errors.New("not authorized")

	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStorage covers backend read/write/listen failures.
	ErrStorage = errors.New("storage failure")
)

// DecodeError reports a single document that could not be decoded into its
// record type. It is recovered locally: the offending record is dropped from
// the live snapshot and the subscription keeps running.
type DecodeError struct {
	Collection string
	DocID      string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode document %s/%s: %v", e.Collection, e.DocID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PartialSignUpError reports a sign-up where the credential account was
// created but the profile write failed. The identity exists and is signed in;
// the caller can retry the profile write without recreating the account.
type PartialSignUpError struct {
	Identity *models.Identity
	Err      error
}

func (e *PartialSignUpError) Error() string {
	return fmt.Sprintf("identity %s created but profile write failed: %v", e.Identity.ID, e.Err)
}

func (e *PartialSignUpError) Unwrap() error { return e.Err }

// IsCredential reports whether err is a credential failure.
func IsCredential(err error) bool { return errors.Is(err, ErrCredential) }

// IsAuth reports whether err is an authorization failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStorage reports whether err is a backend storage failure.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsPartialSignUp reports whether err is a partial sign-up failure and
// returns the created identity if so.
func IsPartialSignUp(err error) (*models.Identity, bool) {
	var pe *PartialSignUpError
	if errors.As(err, &pe) {
		return pe.Identity, true
	}
	return nil, false
}
