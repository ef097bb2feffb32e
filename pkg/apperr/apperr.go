// Package apperr defines the application error taxonomy. Every failure that
// crosses the action boundary is one of these types so handlers can map it to
// a non-leaking HTTP response.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired means no user identity is present.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPermissionDenied means the caller's role lacks the permission.
	// Deliberately carries no detail about which permission was missing.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound covers both "does not exist" and "exists in another tenant";
	// callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")
)

// ValidationError is a malformed input payload, recoverable by the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// QuotaExceededError means the organization's plan limit for an entity kind
// is reached. Current and Limit are surfaced so the user can upgrade.
type QuotaExceededError struct {
	Entity  string `json:"entity"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("plan limit reached for %s (%d/%d)", e.Entity, e.Current, e.Limit)
}

// ExternalError wraps a store/cache/third-party failure. Surfaced to the
// client as a generic retryable failure.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ExternalError) Unwrap() error { return e.Err }

// External wraps err as an ExternalError.
func External(op string, err error) error {
	return &ExternalError{Op: op, Err: err}
}
