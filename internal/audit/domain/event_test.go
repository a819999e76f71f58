package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	valid := func() *Event {
		return &Event{
			Level:       LevelInfo,
			Type:        EventAPIRequest,
			Action:      "request_received",
			Description: "GET /bookings",
			Success:     true,
		}
	}

	t.Run("valid event", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("invalid level", func(t *testing.T) {
		event := valid()
		event.Level = Level("fatal")
		assert.Error(t, event.Validate())
	})

	t.Run("invalid type", func(t *testing.T) {
		event := valid()
		event.Type = EventType("user_sneezed")
		assert.Error(t, event.Validate())
	})

	t.Run("missing action", func(t *testing.T) {
		event := valid()
		event.Action = ""
		assert.Error(t, event.Validate())
	})
}

func TestLevelValid(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarning, LevelError} {
		assert.True(t, l.Valid())
	}
	assert.False(t, Level("trace").Valid())
}

func TestEventTypeValid(t *testing.T) {
	known := []EventType{
		EventAuthSuccess, EventAuthFailed, EventAdminAction,
		EventBookingCreated, EventBookingCancelled,
		EventPaymentSucceeded, EventPaymentFailed,
		EventRateLimitExceeded, EventSecurityViolation,
		EventAPIRequest, EventAPIResponse, EventAPIError,
	}
	for _, eventType := range known {
		assert.True(t, eventType.Valid(), string(eventType))
	}
	assert.False(t, EventType("unknown").Valid())
}

func TestEventIsFailure(t *testing.T) {
	assert.True(t, (&Event{Type: EventAuthFailed, Success: false}).IsFailure())
	assert.True(t, (&Event{Type: EventPaymentFailed, Success: false}).IsFailure())

	// Success or non-failure types never count
	assert.False(t, (&Event{Type: EventAuthFailed, Success: true}).IsFailure())
	assert.False(t, (&Event{Type: EventAPIError, Success: false}).IsFailure())
}
