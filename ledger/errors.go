/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All core error kinds in one place. Callers (the HTTP layer) distinguish
  "not found / bad input" from "something is broken" with errors.Is and the
  helpers below; the two must never share a status code or error shape.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range caller input.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownUser is returned when a referenced identifier is not registered.
	ErrUnknownUser = errors.New("unknown user")

	// ErrDuplicateUser is returned on a registration collision.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrMalformedTime is returned when an absolute timestamp cannot be parsed.
	ErrMalformedTime = errors.New("malformed timestamp")

	// ErrMalformedSpec is returned when a duration spec cannot be parsed.
	ErrMalformedSpec = errors.New("malformed duration spec")

	// ErrStorageUnavailable is returned when neither storage location is usable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorage is returned when a write failed mid-transaction and was
	// rolled back. The core never retries; the caller decides.
	ErrStorage = errors.New("storage error")

	// ErrInconsistent is returned when the cached debt does not match the
	// sum over the transaction log. Never auto-corrected.
	ErrInconsistent = errors.New("ledger inconsistent")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InconsistencyError carries both sides of a failed reconciliation.
type InconsistencyError struct {
	CRSID   string
	Cached  Pence
	Derived Pence
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistent for %s: cached debt %d, derived debt %d",
		e.CRSID, e.Cached, e.Derived)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMalformedTime) ||
		errors.Is(err, ErrMalformedSpec) ||
		errors.Is(err, ErrDuplicateUser)
}

// IsNotFound returns true if the error indicates a missing user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownUser)
}
