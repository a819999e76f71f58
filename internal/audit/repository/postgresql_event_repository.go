// Package repository implements audit trail persistence for PostgreSQL and MySQL.
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

// eventColumns is the shared projection for full event reads.
const eventColumns = `id, created_at, level, event_type, user_id, user_role, target_type,
	target_id, action, description, success, error_message, metadata, ip_address,
	user_agent, request_id`

// PostgreSQLEventRepository implements audit event persistence for PostgreSQL.
// Uses native UUID types with transaction support via database.GetTx().
type PostgreSQLEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLEventRepository creates a new PostgreSQL audit event repository.
func NewPostgreSQLEventRepository(db *sql.DB) *PostgreSQLEventRepository {
	return &PostgreSQLEventRepository{db: db}
}

// Create inserts a new audit event. Handles nil metadata as database NULL.
// Events are append-only: there is no update path.
func (p *PostgreSQLEventRepository) Create(ctx context.Context, event *auditDomain.Event) error {
	querier := database.GetTx(ctx, p.db)

	metadataJSON, err := auditDomain.MarshalMetadata(event.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit event metadata")
	}

	query := `INSERT INTO audit_events (id, created_at, level, event_type, user_id, user_role,
			  target_type, target_id, action, description, success, error_message, metadata,
			  ip_address, user_agent, request_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.ID,
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

// List retrieves events matching the filter, newest first. Equal timestamps
// break ties by ID descending so pagination stays deterministic.
func (p *PostgreSQLEventRepository) List(
	ctx context.Context,
	filter auditDomain.Filter,
) ([]*auditDomain.Event, error) {
	querier := database.GetTx(ctx, p.db)

	var conditions []string
	var args []any

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.UserID != nil {
		addCondition("user_id", *filter.UserID)
	}
	if filter.Type != nil {
		addCondition("event_type", string(*filter.Type))
	}
	if filter.Level != nil {
		addCondition("level", string(*filter.Level))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM audit_events%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		eventColumns, where, len(args)-1, len(args),
	)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit events")
	}
	defer func() {
		_ = rows.Close()
	}()

	// Initialize empty slice to avoid returning nil for empty results
	events := make([]*auditDomain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
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

// Stream walks the stats projection of every event in [from, to], invoking fn
// per row. Used by the single-pass aggregation; rows are never buffered.
func (p *PostgreSQLEventRepository) Stream(
	ctx context.Context,
	from, to time.Time,
	fn func(auditDomain.StatsRow) error,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT level, event_type, user_id, success, created_at
			  FROM audit_events
			  WHERE created_at >= $1 AND created_at <= $2`

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

// DeleteBefore removes events older than the cutoff and returns the number of
// rows deleted. Retention is an operator policy, invoked from the CLI, never
// by the pipeline itself.
func (p *PostgreSQLEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit events")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}

// rowScanner abstracts *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans one full event row, handling NULL metadata gracefully.
func scanEvent(rows rowScanner) (*auditDomain.Event, error) {
	var event auditDomain.Event
	var level, eventType string
	var metadataJSON []byte

	err := rows.Scan(
		&event.ID,
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
