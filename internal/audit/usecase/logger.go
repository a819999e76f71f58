package usecase

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	apperrors "github.com/allisson/guardrail/internal/errors"
)

// topUsersLimit bounds the TopUsers list in stats.
const topUsersLimit = 10

// RequestInfo carries the request-scoped fields auto-filled by LogFromRequest.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// Logger is the audit store use case. Events are appended immutably; the
// error/warning sub-stream additionally feeds fingerprint dedup rows.
type Logger struct {
	events    EventRepository
	groups    ErrorGroupRepository
	component string
	log       *slog.Logger
	now       func() time.Time
}

// NewLogger creates an audit Logger. component names the producing system in
// fingerprints (e.g. "pipeline").
func NewLogger(events EventRepository, groups ErrorGroupRepository, component string, log *slog.Logger) *Logger {
	return &Logger{
		events:    events,
		groups:    groups,
		component: component,
		log:       log,
		now:       time.Now,
	}
}

// Log assigns an ID and timestamp to the entry and appends it. Events at
// warning or error level also pass through fingerprint dedup.
func (l *Logger) Log(ctx context.Context, event *auditDomain.Event) error {
	event.ID = uuid.Must(uuid.NewV7())
	event.CreatedAt = l.now().UTC()

	if err := event.Validate(); err != nil {
		return apperrors.Wrap(err, "invalid audit event")
	}

	if err := l.events.Create(ctx, event); err != nil {
		return apperrors.Wrap(err, "failed to create audit event")
	}

	if event.Level == auditDomain.LevelError || event.Level == auditDomain.LevelWarning {
		l.dedup(ctx, event)
	}

	return nil
}

// LogFromRequest is Log with the IP address, user agent and request ID
// auto-filled from the request.
func (l *Logger) LogFromRequest(ctx context.Context, req RequestInfo, event *auditDomain.Event) error {
	if req.IPAddress != "" {
		event.IPAddress = &req.IPAddress
	}
	if req.UserAgent != "" {
		event.UserAgent = &req.UserAgent
	}
	if req.RequestID != "" {
		event.RequestID = &req.RequestID
	}
	return l.Log(ctx, event)
}

// LogAuth records an authentication outcome. Failures carry the error message
// when one is available. Best effort: a failed write is logged locally and
// swallowed so it never fails the original request.
func (l *Logger) LogAuth(ctx context.Context, req RequestInfo, userID, action string, success bool, errMsg string) {
	event := &auditDomain.Event{
		Level:       auditDomain.LevelInfo,
		Type:        auditDomain.EventAuthSuccess,
		Action:      action,
		Description: "authentication succeeded",
		Success:     true,
	}
	if userID != "" {
		event.UserID = &userID
	}
	if !success {
		event.Level = auditDomain.LevelWarning
		event.Type = auditDomain.EventAuthFailed
		event.Description = "authentication failed"
		event.Success = false
		if errMsg != "" {
			event.ErrorMessage = &errMsg
		}
	}

	l.logBestEffort(ctx, req, event)
}

// LogAdminAction records an administrative action against a target resource.
func (l *Logger) LogAdminAction(
	ctx context.Context,
	req RequestInfo,
	userID, action, targetType, targetID string,
	metadata auditDomain.Metadata,
) {
	event := &auditDomain.Event{
		Level:       auditDomain.LevelInfo,
		Type:        auditDomain.EventAdminAction,
		Action:      action,
		Description: "admin action",
		Success:     true,
		Metadata:    metadata,
	}
	if userID != "" {
		event.UserID = &userID
	}
	if targetType != "" {
		event.TargetType = &targetType
	}
	if targetID != "" {
		event.TargetID = &targetID
	}

	l.logBestEffort(ctx, req, event)
}

// LogSecurityEvent records a security violation at warning level.
func (l *Logger) LogSecurityEvent(ctx context.Context, req RequestInfo, description string, metadata auditDomain.Metadata) {
	event := &auditDomain.Event{
		Level:       auditDomain.LevelWarning,
		Type:        auditDomain.EventSecurityViolation,
		Action:      "security_check",
		Description: description,
		Success:     false,
		Metadata:    metadata,
	}

	l.logBestEffort(ctx, req, event)
}

// GetLogs returns a page of events matching the filter, newest first.
func (l *Logger) GetLogs(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.Event, error) {
	if err := filter.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidationFailed, err.Error())
	}
	filter.Normalize()

	events, err := l.events.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit events")
	}

	return events, nil
}

// GetStats aggregates the [from, to] range in a single streamed pass.
// FailureRate is zero, not NaN, when the range holds no events.
func (l *Logger) GetStats(ctx context.Context, from, to time.Time) (*auditDomain.Stats, error) {
	stats := &auditDomain.Stats{
		EventsByType:  make(map[auditDomain.EventType]int64),
		EventsByLevel: make(map[auditDomain.Level]int64),
	}

	type userAgg struct {
		count     int64
		lastEvent time.Time
	}
	users := make(map[string]*userAgg)

	var failed int64
	err := l.events.Stream(ctx, from, to, func(row auditDomain.StatsRow) error {
		stats.TotalEvents++
		stats.EventsByType[row.Type]++
		stats.EventsByLevel[row.Level]++
		if !row.Success {
			failed++
		}
		if row.UserID != nil && *row.UserID != "" {
			agg, ok := users[*row.UserID]
			if !ok {
				agg = &userAgg{}
				users[*row.UserID] = agg
			}
			agg.count++
			if row.CreatedAt.After(agg.lastEvent) {
				agg.lastEvent = row.CreatedAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate audit events")
	}

	if stats.TotalEvents > 0 {
		stats.FailureRate = float64(failed) / float64(stats.TotalEvents)
	}

	top := make([]auditDomain.UserActivity, 0, len(users))
	for userID, agg := range users {
		top = append(top, auditDomain.UserActivity{
			UserID:     userID,
			EventCount: agg.count,
			LastEvent:  agg.lastEvent,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].EventCount != top[j].EventCount {
			return top[i].EventCount > top[j].EventCount
		}
		return top[i].LastEvent.After(top[j].LastEvent)
	})
	if len(top) > topUsersLimit {
		top = top[:topUsersLimit]
	}
	stats.TopUsers = top

	return stats, nil
}

// Purge removes events and dedup groups older than the cutoff, returning the
// number of events deleted.
func (l *Logger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := l.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to purge audit events")
	}

	if _, err := l.groups.DeleteBefore(ctx, cutoff); err != nil {
		return deleted, apperrors.Wrap(err, "failed to purge audit error groups")
	}

	return deleted, nil
}

// ErrorGroups returns dedup rows ordered by most recent occurrence.
func (l *Logger) ErrorGroups(ctx context.Context, offset, limit int) ([]*auditDomain.ErrorGroup, error) {
	groups, err := l.groups.List(ctx, offset, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit error groups")
	}
	return groups, nil
}

// logBestEffort appends the event, containing any failure locally.
func (l *Logger) logBestEffort(ctx context.Context, req RequestInfo, event *auditDomain.Event) {
	if err := l.LogFromRequest(ctx, req, event); err != nil {
		l.log.Error("audit write failed",
			slog.String("event_type", string(event.Type)),
			slog.String("action", event.Action),
			slog.Any("error", err),
		)
	}
}

// dedup feeds the error/warning sub-stream into the fingerprint groups.
// Failures here are contained: the event itself is already persisted.
func (l *Logger) dedup(ctx context.Context, event *auditDomain.Event) {
	group := &auditDomain.ErrorGroup{
		Fingerprint: auditDomain.NewFingerprint(event.Description, l.component, callerFrame()),
		Level:       event.Level,
		Component:   l.component,
		Description: event.Description,
		Count:       1,
		FirstSeen:   event.CreatedAt,
		LastSeen:    event.CreatedAt,
	}

	if err := l.groups.Upsert(ctx, group); err != nil {
		l.log.Error("audit dedup upsert failed",
			slog.String("fingerprint", string(group.Fingerprint)),
			slog.Any("error", err),
		)
	}
}

// callerFrame returns the first stack frame outside this package, as
// "file.go:line". Empty when the stack cannot be resolved.
func callerFrame() string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File == "" {
			return ""
		}
		if !strings.Contains(frame.File, "internal/audit/usecase") {
			short := frame.File
			if idx := strings.LastIndexByte(short, '/'); idx >= 0 {
				short = short[idx+1:]
			}
			return short + ":" + strconv.Itoa(frame.Line)
		}
		if !more {
			return ""
		}
	}
}
