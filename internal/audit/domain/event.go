// Package domain defines the audit trail entities: security events, their
// dedup groups and the derived query views.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of an audit event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// EventType is the closed enum of auditable event kinds.
type EventType string

const (
	EventAuthSuccess       EventType = "auth_success"
	EventAuthFailed        EventType = "auth_failed"
	EventAdminAction       EventType = "admin_action"
	EventBookingCreated    EventType = "booking_created"
	EventBookingCancelled  EventType = "booking_cancelled"
	EventPaymentSucceeded  EventType = "payment_succeeded"
	EventPaymentFailed     EventType = "payment_failed"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventSecurityViolation EventType = "security_violation"
	EventAPIRequest        EventType = "api_request"
	EventAPIResponse       EventType = "api_response"
	EventAPIError          EventType = "api_error"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventAuthSuccess, EventAuthFailed, EventAdminAction,
		EventBookingCreated, EventBookingCancelled,
		EventPaymentSucceeded, EventPaymentFailed,
		EventRateLimitExceeded, EventSecurityViolation,
		EventAPIRequest, EventAPIResponse, EventAPIError:
		return true
	}
	return false
}

// Event records one security-relevant or administrative occurrence.
// Immutable once written; only the dedup groups carry running counters.
type Event struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Level        Level
	Type         EventType
	UserID       *string
	UserRole     *string
	TargetType   *string
	TargetID     *string
	Action       string
	Description  string
	Success      bool
	ErrorMessage *string
	Metadata     Metadata
	IPAddress    *string
	UserAgent    *string
	RequestID    *string
}

// Validate checks the event's enum fields and the failed-event invariant:
// an unsuccessful *_failed event must carry an error message when one was
// provided at the call site; an empty pointer target is normalized to nil.
func (e *Event) Validate() error {
	if !e.Level.Valid() {
		return errInvalidLevel
	}
	if !e.Type.Valid() {
		return errInvalidType
	}
	if e.Action == "" {
		return errMissingAction
	}
	return nil
}

// IsFailure reports whether the event records a failed outcome of a
// failure-class type.
func (e *Event) IsFailure() bool {
	return !e.Success && strings.HasSuffix(string(e.Type), "_failed")
}
