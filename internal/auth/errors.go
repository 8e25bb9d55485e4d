package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Domain error taxonomy. Callers classify with errors.Is; the HTTP boundary maps
// each sentinel to a stable status code.
var (
	// ErrUnauthorized covers missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("could not validate credentials")

	// ErrForbidden covers a valid identity with insufficient scope or an inactive account.
	ErrForbidden = errors.New("forbidden")

	// ErrInactiveUser is the Forbidden variant for deactivated principals.
	ErrInactiveUser = fmt.Errorf("%w: inactive user", ErrForbidden)

	// ErrConflict covers duplicate emails, role names and external-identity links.
	ErrConflict = errors.New("conflict")

	// ErrInvalidProvider is returned for unsupported external provider names.
	ErrInvalidProvider = errors.New("invalid auth provider")

	// ErrInvalidAssertion is returned when an external assertion fails verification.
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// ErrNotFound is returned when a referenced role, permission or user is absent.
	ErrNotFound = errors.New("not found")

	// ErrInternalInconsistency means expected seed data (such as the default role) is missing.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrBadRequest covers malformed input and failed business preconditions.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidToken is returned by TokenCodec.DecodeToken.
	ErrInvalidToken = errors.New("invalid token")
)

// ScopeError is the Forbidden error raised when a required scope is missing from
// the principal's effective permission set.
type ScopeError struct {
	// Scope is the first required scope that was not granted.
	Scope string
	// Required is the full scope set the endpoint demanded.
	Required []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("not enough permissions: missing scope %q", e.Scope)
}

// Unwrap makes errors.Is(err, ErrForbidden) hold.
func (e *ScopeError) Unwrap() error {
	return ErrForbidden
}

// Challenge returns the WWW-Authenticate header value for this failure.
func (e *ScopeError) Challenge() string {
	return Challenge(e.Required)
}

// Challenge builds a bearer WWW-Authenticate value naming the required scopes.
func Challenge(scopes []string) string {
	if len(scopes) == 0 {
		return "Bearer"
	}
	return fmt.Sprintf(`Bearer scope="%s"`, strings.Join(scopes, " "))
}
