package domain

import (
	"time"

	validation "github.com/jellydator/validation"
)

// Filter selects events for GetLogs. Any subset of the optional fields may be
// set; zero Limit falls back to DefaultLimit.
type Filter struct {
	UserID *string
	Type   *EventType
	Level  *Level
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	// DefaultLimit is the page size used when the filter does not set one.
	DefaultLimit = 50
	// MaxLimit caps the page size regardless of what the filter asks for.
	MaxLimit = 500
)

// Validate checks enum fields and range sanity.
func (f *Filter) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Limit, validation.Min(0), validation.Max(MaxLimit)),
		validation.Field(&f.Offset, validation.Min(0)),
	)
}

// Normalize applies defaults and caps to the pagination fields.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// UserActivity is one entry of Stats.TopUsers.
type UserActivity struct {
	UserID     string
	EventCount int64
	LastEvent  time.Time
}

// Stats is the single-pass aggregation over a time range of events.
type Stats struct {
	TotalEvents   int64
	EventsByType  map[EventType]int64
	EventsByLevel map[Level]int64
	// FailureRate is failed/total; zero when there are no events.
	FailureRate float64
	TopUsers    []UserActivity
}

// StatsRow is the projection streamed by the repository for aggregation.
type StatsRow struct {
	Level     Level
	Type      EventType
	UserID    *string
	Success   bool
	CreatedAt time.Time
}
