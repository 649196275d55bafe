package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReferenceUnavailable indicates that a reference vocabulary could not be loaded.
	ErrReferenceUnavailable = errors.New("reference unavailable")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrScoring indicates that a pair could not be scored.
	ErrScoring = errors.New("scoring failed")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")
)

// InputError reports a table that is not well formed. It is the only
// engine failure that aborts a whole pass.
type InputError struct {
	Reason string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid table: %s", e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ReferenceError describes a vocabulary that failed to load.
type ReferenceError struct {
	Set   string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *ReferenceError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("reference set %s unavailable (%s)", e.Set, e.Path)
	}
	return fmt.Sprintf("reference set %s unavailable (%s): %v", e.Set, e.Path, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ReferenceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrReferenceUnavailable}
	}
	return []error{ErrReferenceUnavailable, e.Cause}
}

// ExternalServiceError provides details about a failed call to the
// external normalization service.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ExternalServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrServiceUnavailable}
	}
	return []error{ErrServiceUnavailable, e.Cause}
}

// ScoringError reports a pair whose fields could not be compared.
type ScoringError struct {
	RowI   int
	RowJ   int
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("cannot score rows %d and %d on %s: %s", e.RowI, e.RowJ, e.Field, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ScoringError) Unwrap() error {
	return ErrScoring
}

// NewInputError creates a new InputError.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewReferenceError creates a new ReferenceError.
func NewReferenceError(set, path string, cause error) *ReferenceError {
	return &ReferenceError{
		Set:   set,
		Path:  path,
		Cause: cause,
	}
}

// NewExternalServiceError creates a new ExternalServiceError.
func NewExternalServiceError(service string, statusCode int, message string, cause error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
