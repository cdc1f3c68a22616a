// Package errors provides standardized error types for the domain layer.
// These errors enable consistent categorization across services and map
// cleanly onto HTTP responses at the API boundary.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested record was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a conflict with the current state, e.g. a retry
	// requested while a step is already in progress
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrServiceUnavailable indicates an upstream service is temporarily
	// unreachable; callers recover such errors with a fixed-delay retry
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrPersistence indicates a durable write could not be confirmed. This
	// is fatal to the current operation: losing a write breaks the
	// resume-after-restart guarantee, so it must never be swallowed.
	ErrPersistence = errors.New("persistence failure")
)

// DomainError carries additional context about a categorized error
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message}
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// NotFoundError creates a not found error for a named resource
func NotFoundError(resource string, id interface{}) *DomainError {
	return NewDomainError(ErrNotFound, "NOT_FOUND", fmt.Sprintf("%s %v not found", resource, id))
}

// PersistenceError wraps a failed durable write
func PersistenceError(op string, err error) *DomainError {
	return NewDomainError(fmt.Errorf("%w: %s: %v", ErrPersistence, op, err), "PERSISTENCE", "")
}
