// Package usecase implements the audit trail business logic: append,
// deduplicate, query and aggregate security events.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
)

// EventRepository persists audit events. Implementations must keep List
// ordering stable (created_at descending, id descending on ties).
type EventRepository interface {
	Create(ctx context.Context, event *auditDomain.Event) error
	List(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.Event, error)
	Stream(ctx context.Context, from, to time.Time, fn func(auditDomain.StatsRow) error) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrorGroupRepository persists fingerprint dedup rows. Upsert must be atomic
// at the store layer: concurrent increments of one fingerprint never lose
// updates.
type ErrorGroupRepository interface {
	Upsert(ctx context.Context, group *auditDomain.ErrorGroup) error
	List(ctx context.Context, offset, limit int) ([]*auditDomain.ErrorGroup, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
