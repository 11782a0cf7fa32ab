package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core packages.
var (
	// ErrNotFound indicates the requested role does not exist.
	ErrNotFound = errors.New("role not found")
	// ErrDuplicate indicates a create collided with an existing role_id.
	ErrDuplicate = errors.New("duplicate role_id")
	// ErrUnauthenticated indicates the caller identity could not be resolved.
	ErrUnauthenticated = errors.New("caller not authenticated")
	// ErrCredentialsNeeded indicates not enough credential inputs were
	// supplied to attempt authentication at all. Distinct from AuthError:
	// the caller can recover by supplying more input.
	ErrCredentialsNeeded = errors.New("not enough credentials to attempt authentication")
)

// CredentialKind names the credential source an authentication attempt used.
type CredentialKind string

// Credential sources accepted by the resolver.
const (
	CredentialPassword CredentialKind = "password"
	CredentialKeyfile  CredentialKind = "keyfile"
	CredentialAgent    CredentialKind = "ssh-agent"
	CredentialToken    CredentialKind = "token"
)

// AuthError reports an authentication attempt that was made and rejected.
// Retrying with the same input will not succeed.
type AuthError struct {
	Kind CredentialKind
	// PassphraseRequired is set when key material was supplied but is
	// encrypted and no passphrase was given.
	PassphraseRequired bool
	Err                error
}

func (e *AuthError) Error() string {
	if e.PassphraseRequired {
		return fmt.Sprintf("auth failed (%s): private key is encrypted and requires a passphrase", e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("auth failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError reports a malformed or missing role document field.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid field %q: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("required field %q is missing or empty", e.Field)
}

// ForbiddenReason enumerates the distinct denial reasons the decision
// engine produces. Adapters map each to its own result code.
type ForbiddenReason string

const (
	ReasonNotGateMember     ForbiddenReason = "not a gate-role member"
	ReasonNotOwnerOrUpdater ForbiddenReason = "not the role owner or an updater"
	ReasonNotOwner          ForbiddenReason = "not the role owner"
)

// ForbiddenError reports an authenticated caller lacking a specific privilege.
type ForbiddenError struct {
	Reason ForbiddenReason
	RoleID string
	UserID string
}

func (e *ForbiddenError) Error() string {
	if e.RoleID != "" {
		return fmt.Sprintf("user %q denied on role %q: %s", e.UserID, e.RoleID, e.Reason)
	}
	return fmt.Sprintf("user %q denied: %s", e.UserID, e.Reason)
}
