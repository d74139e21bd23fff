package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all layers.
var (
	// ErrValidation marks malformed query or filter input.
	ErrValidation = errors.New("validation error")

	// ErrEmbeddingUnavailable marks a failed or timed out embedding call.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexUnavailable marks a storage failure during retrieval.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIntegrity marks a referential violation during ingestion.
	ErrIntegrity = errors.New("integrity error")

	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
