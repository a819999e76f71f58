package repository

import (
	"context"
	"database/sql"
	"time"

	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	"github.com/allisson/guardrail/internal/database"
	apperrors "github.com/allisson/guardrail/internal/errors"
)

// PostgreSQLErrorGroupRepository implements fingerprint dedup rows for PostgreSQL.
// The upsert is a single atomic statement so concurrent requests incrementing
// the same fingerprint never lose updates.
type PostgreSQLErrorGroupRepository struct {
	db *sql.DB
}

// NewPostgreSQLErrorGroupRepository creates a new PostgreSQL error group repository.
func NewPostgreSQLErrorGroupRepository(db *sql.DB) *PostgreSQLErrorGroupRepository {
	return &PostgreSQLErrorGroupRepository{db: db}
}

// Upsert inserts a new group with count 1 or atomically increments the
// existing row's count and bumps last_seen. first_seen is never modified.
func (p *PostgreSQLErrorGroupRepository) Upsert(ctx context.Context, group *auditDomain.ErrorGroup) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_error_groups (fingerprint, level, component, description, count, first_seen, last_seen)
			  VALUES ($1, $2, $3, $4, 1, $5, $5)
			  ON CONFLICT (fingerprint) DO UPDATE
			  SET count = audit_error_groups.count + 1,
			      last_seen = GREATEST(audit_error_groups.last_seen, EXCLUDED.last_seen)`

	_, err := querier.ExecContext(
		ctx,
		query,
		string(group.Fingerprint),
		string(group.Level),
		group.Component,
		group.Description,
		group.LastSeen,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert audit error group")
	}

	return nil
}

// List retrieves groups ordered by last_seen descending with pagination.
func (p *PostgreSQLErrorGroupRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*auditDomain.ErrorGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT fingerprint, level, component, description, count, first_seen, last_seen
			  FROM audit_error_groups
			  ORDER BY last_seen DESC
			  LIMIT $1 OFFSET $2`

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
func (p *PostgreSQLErrorGroupRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_error_groups WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit error groups")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}

// scanErrorGroup scans one dedup row.
func scanErrorGroup(rows rowScanner) (*auditDomain.ErrorGroup, error) {
	var group auditDomain.ErrorGroup
	var fingerprint, level string

	err := rows.Scan(
		&fingerprint,
		&level,
		&group.Component,
		&group.Description,
		&group.Count,
		&group.FirstSeen,
		&group.LastSeen,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan audit error group")
	}

	group.Fingerprint = auditDomain.Fingerprint(fingerprint)
	group.Level = auditDomain.Level(level)

	return &group, nil
}
