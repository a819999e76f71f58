package repository

import (
	"context"
	"database/sql"
	"time"

	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	"github.com/allisson/guardrail/internal/database"
	apperrors "github.com/allisson/guardrail/internal/errors"
)

// MySQLErrorGroupRepository implements fingerprint dedup rows for MySQL.
type MySQLErrorGroupRepository struct {
	db *sql.DB
}

// NewMySQLErrorGroupRepository creates a new MySQL error group repository.
func NewMySQLErrorGroupRepository(db *sql.DB) *MySQLErrorGroupRepository {
	return &MySQLErrorGroupRepository{db: db}
}

// Upsert inserts a new group with count 1 or atomically increments the
// existing row's count and bumps last_seen.
func (m *MySQLErrorGroupRepository) Upsert(ctx context.Context, group *auditDomain.ErrorGroup) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO audit_error_groups (fingerprint, level, component, description, count, first_seen, last_seen)
			  VALUES (?, ?, ?, ?, 1, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  count = count + 1,
			  last_seen = GREATEST(last_seen, VALUES(last_seen))`

	_, err := querier.ExecContext(
		ctx,
		query,
		string(group.Fingerprint),
		string(group.Level),
		group.Component,
		group.Description,
		group.LastSeen,
		group.LastSeen,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert audit error group")
	}

	return nil
}

// List retrieves groups ordered by last_seen descending with pagination.
func (m *MySQLErrorGroupRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*auditDomain.ErrorGroup, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT fingerprint, level, component, description, count, first_seen, last_seen
			  FROM audit_error_groups
			  ORDER BY last_seen DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit error groups")
	}
	defer func() {
		_ = rows.Close()
	}()

	groups := make([]*auditDomain.ErrorGroup, 0)
	for rows.Next() {
		group, err := scanErrorGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit error groups")
	}

	return groups, nil
}

// DeleteBefore removes groups whose last occurrence is older than the cutoff.
func (m *MySQLErrorGroupRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_error_groups WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit error groups")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}
