package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a printer or job does not exist for the caller
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation conflicts with current state
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated is returned for a missing, malformed or expired credential
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrJobNotFound     = fmt.Errorf("job %w", ErrNotFound)
	ErrPrinterNotFound = fmt.Errorf("printer %w", ErrNotFound)

	// ErrPrinterOffline is returned when submitting against an offline printer
	ErrPrinterOffline = fmt.Errorf("%w: printer is offline", ErrInvalidState)

	// ErrInvalidTransition is returned when a status change is not allowed from the current status
	ErrInvalidTransition = fmt.Errorf("%w: status transition not allowed", ErrInvalidState)

	// ErrStaleStatus is returned when the job changed status between read and write
	ErrStaleStatus = fmt.Errorf("%w: job status changed concurrently", ErrInvalidState)
)

// ValidationError describes one malformed input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
