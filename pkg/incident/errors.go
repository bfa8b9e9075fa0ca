package incident

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an incident or hypothesis does not exist
	ErrNotFound = errors.New("not found")

	// ErrStorage is returned when the record store cannot read or write
	ErrStorage = errors.New("storage failure")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a hypothesis is already terminal
	ErrInvalidTransition = errors.New("invalid hypothesis transition")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func incidentNotFound(id string) error {
	return fmt.Errorf("incident %s: %w", id, ErrNotFound)
}

func hypothesisNotFound(incidentID, hypothesisID string) error {
	return fmt.Errorf("hypothesis %s in incident %s: %w", hypothesisID, incidentID, ErrNotFound)
}
