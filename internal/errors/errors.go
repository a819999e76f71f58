// Package errors provides standardized domain errors for the security pipeline.
// These errors express the failure taxonomy of the request-security layer and are
// mapped to response statuses by the pipeline, never by individual components.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all pipeline components.
var (
	// ErrRateLimitExceeded indicates the client exceeded its request budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidOrigin indicates the request origin is not in the allow-list.
	ErrInvalidOrigin = errors.New("invalid origin")

	// ErrCSRFFailed indicates CSRF token validation failed.
	ErrCSRFFailed = errors.New("CSRF validation failed")

	// ErrPayloadTooLarge indicates the request body exceeds the configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnsupportedContentType indicates the request content type is not allowed.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrValidationFailed indicates the input data failed field-level validation.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInternal indicates an unexpected internal failure. Details are logged,
	// never surfaced to the client.
	ErrInternal = errors.New("internal error")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Expected reports whether err belongs to the expected, user-facing part of the
// taxonomy. Expected failures are logged at WARNING at most; everything else is
// treated as internal and logged at ERROR.
func Expected(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrInvalidOrigin),
		errors.Is(err, ErrCSRFFailed),
		errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrUnsupportedContentType),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
