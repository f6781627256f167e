// Package apperr defines the error taxonomy shared by the map engine, the
// data platform adapter and the HTTP layer.
//
// Callers classify errors with errors.Is against the sentinels below:
//   - ErrValidation: bad input, shown inline, never dispatched
//   - ErrNotOwner / ErrPermissionDenied: blocking message
//   - ErrNotFound: idempotent for deletes, hard error for reads
//   - ErrProvider: search/geocode/feed failures, degrade gracefully
//   - ErrPartialFailure: entity created, secondary step failed
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotOwner         = errors.New("not the owner")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrProvider         = errors.New("provider error")
	ErrPartialFailure   = errors.New("partial failure")
	ErrPlaceNotFound    = errors.New("place not found")
	ErrLoginRequired    = errors.New("login required")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a *ValidationError for field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// PartialFailure reports that Entity was created or updated but a follow-up
// step failed. The entity is preserved.
type PartialFailure struct {
	Entity string
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s saved with warnings: %v", e.Entity, e.Err)
}

func (e *PartialFailure) Unwrap() []error { return []error{ErrPartialFailure, e.Err} }

// Provider wraps err as a provider failure for the named operation.
func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}

// Kind returns a short machine-readable name for err's category, or
// "internal" when err matches none of the sentinels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPlaceNotFound):
		return "place_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLoginRequired):
		return "login_required"
	case errors.Is(err, ErrPartialFailure):
		return "partial_failure"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "internal"
	}
}
