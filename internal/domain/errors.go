package domain

import "errors"

// Sentinel errors returned by repositories and the session layer. Business
// outcomes such as a wrong code or an exhausted bucket are not errors; they
// travel as a Result.
var (
	// ErrNotFound is returned when a keyed lookup has no item.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write loses to an existing item.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized marks a session token that is invalid, revoked or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks a capability switched off by configuration.
	ErrForbidden = errors.New("forbidden")
)
