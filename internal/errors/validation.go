package errors

import (
	"fmt"
	"strings"
)

// FieldError describes a single field-level validation failure. A validation
// failure always yields a structured list of these rather than one opaque error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationError aggregates field-level failures for one request body.
// It unwraps to ErrValidationFailed so callers can match on the sentinel.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrValidationFailed) hold for ValidationError.
func (v *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a ValidationError from field failures.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}
