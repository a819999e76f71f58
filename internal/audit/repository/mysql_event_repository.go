package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	"github.com/allisson/guardrail/internal/database"
	apperrors "github.com/allisson/guardrail/internal/errors"
)

// MySQLEventRepository implements audit event persistence for MySQL.
// UUIDs are stored as CHAR(36) strings since MySQL lacks a native UUID type.
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQL audit event repository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{db: db}
}

// Create inserts a new audit event. Handles nil metadata as database NULL.
func (m *MySQLEventRepository) Create(ctx context.Context, event *auditDomain.Event) error {
	querier := database.GetTx(ctx, m.db)

	metadataJSON, err := auditDomain.MarshalMetadata(event.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit event metadata")
	}

	query := `INSERT INTO audit_events (id, created_at, level, event_type, user_id, user_role,
			  target_type, target_id, action, description, success, error_message, metadata,
			  ip_address, user_agent, request_id)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.ID.String(),
		event.CreatedAt,
		string(event.Level),
		string(event.Type),
		event.UserID,
		event.UserRole,
		event.TargetType,
		event.TargetID,
		event.Action,
		event.Description,
		event.Success,
		event.ErrorMessage,
		metadataJSON,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit event")
	}

	return nil
}

// List retrieves events matching the filter, newest first with ID tiebreak.
func (m *MySQLEventRepository) List(
	ctx context.Context,
	filter auditDomain.Filter,
) ([]*auditDomain.Event, error) {
	querier := database.GetTx(ctx, m.db)

	var conditions []string
	var args []any

	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Type != nil {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filter.Level))
	}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM audit_events%s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		eventColumns, where,
	)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*auditDomain.Event, 0)
	for rows.Next() {
		event, err := scanMySQLEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit events")
	}

	return events, nil
}

// Stream walks the stats projection of every event in [from, to].
func (m *MySQLEventRepository) Stream(
	ctx context.Context,
	from, to time.Time,
	fn func(auditDomain.StatsRow) error,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT level, event_type, user_id, success, created_at
			  FROM audit_events
			  WHERE created_at >= ? AND created_at <= ?`

	rows, err := querier.QueryContext(ctx, query, from, to)
	if err != nil {
		return apperrors.Wrap(err, "failed to stream audit events")
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var row auditDomain.StatsRow
		var level, eventType string

		if err := rows.Scan(&level, &eventType, &row.UserID, &row.Success, &row.CreatedAt); err != nil {
			return apperrors.Wrap(err, "failed to scan audit event row")
		}

		row.Level = auditDomain.Level(level)
		row.Type = auditDomain.EventType(eventType)

		if err := fn(row); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return apperrors.Wrap(err, "failed to iterate audit events")
	}

	return nil
}

// DeleteBefore removes events older than the cutoff.
func (m *MySQLEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit events")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}

// scanMySQLEvent scans one full event row, parsing the CHAR(36) id.
func scanMySQLEvent(rows rowScanner) (*auditDomain.Event, error) {
	var event auditDomain.Event
	var id, level, eventType string
	var metadataJSON []byte

	err := rows.Scan(
		&id,
		&event.CreatedAt,
		&level,
		&eventType,
		&event.UserID,
		&event.UserRole,
		&event.TargetType,
		&event.TargetID,
		&event.Action,
		&event.Description,
		&event.Success,
		&event.ErrorMessage,
		&metadataJSON,
		&event.IPAddress,
		&event.UserAgent,
		&event.RequestID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan audit event")
	}

	parsed, err := parseUUID(id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse audit event id")
	}
	event.ID = parsed

	event.Level = auditDomain.Level(level)
	event.Type = auditDomain.EventType(eventType)

	if metadataJSON != nil {
		metadata, err := auditDomain.UnmarshalMetadata(metadataJSON)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit event metadata")
		}
		event.Metadata = metadata
	}

	return &event, nil
}
