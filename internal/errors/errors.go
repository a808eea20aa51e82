// Package errors provides the consolidated error definitions for tfcalib.
//
// Sentinels are grouped by the stage that raises them. Callers test for a
// category with the Is* helpers rather than matching sentinels directly.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Lookup errors
	ErrRecordNotFound = errors.New("record not found")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Emission errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRecordRejected   = errors.New("record rejected")

	// I/O errors
	ErrClosed        = errors.New("closed")
	ErrCorruptRecord = errors.New("corrupt record")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if a failed delivery may succeed later.
// Rejected records count: redelivery to the store is idempotent.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrRecordRejected)
}

// NewValidation creates a validation error for a config field.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates a validation error naming the offending value.
func NewInvalidValue(field string, value any, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
