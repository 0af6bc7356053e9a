package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"fare/internal/domain"
	"fare/internal/repository"
)

// OverrideRepository is a PostgreSQL implementation of repository.OverrideRepository.
// Scope and parameters are stored as JSONB; the flat fields get columns.
type OverrideRepository struct {
	q Querier
}

// NewOverrideRepository creates a new PostgreSQL override repository.
func NewOverrideRepository(db *sql.DB) *OverrideRepository {
	return &OverrideRepository{q: db}
}

// Create persists a new override.
func (r *OverrideRepository) Create(ctx context.Context, o *domain.Override) error {
	query := `
		INSERT INTO overrides (id, type, scope, service_types, parameters, reason, operator_id, approval_level, status, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	scope, err := json.Marshal(o.Scope)
	if err != nil {
		return err
	}
	params, err := json.Marshal(o.Parameters)
	if err != nil {
		return err
	}

	serviceTypes := make([]string, len(o.ServiceTypes))
	for i, st := range o.ServiceTypes {
		serviceTypes[i] = string(st)
	}

	var endTime sql.NullTime
	if !o.EndTime.IsZero() {
		endTime = sql.NullTime{Time: o.EndTime, Valid: true}
	}

	_, err = r.q.ExecContext(ctx, query,
		o.ID,
		o.Type,
		scope,
		pq.Array(serviceTypes),
		params,
		o.Reason,
		o.IssuedBy.OperatorID,
		o.IssuedBy.ApprovalLevel,
		o.Status,
		o.StartTime,
		endTime,
		o.CreatedAt,
	)
	return err
}

const overrideColumns = `id, type, scope, service_types, parameters, reason, operator_id, approval_level, status, start_time, end_time, created_at, revoked_at, revoke_reason`

func scanOverride(scan func(dest ...any) error) (*domain.Override, error) {
	var (
		o            domain.Override
		scope        []byte
		params       []byte
		serviceTypes pq.StringArray
		endTime      sql.NullTime
		revokedAt    sql.NullTime
		revokeReason sql.NullString
	)

	err := scan(
		&o.ID,
		&o.Type,
		&scope,
		&serviceTypes,
		&params,
		&o.Reason,
		&o.IssuedBy.OperatorID,
		&o.IssuedBy.ApprovalLevel,
		&o.Status,
		&o.StartTime,
		&endTime,
		&o.CreatedAt,
		&revokedAt,
		&revokeReason,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scope, &o.Scope); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &o.Parameters); err != nil {
		return nil, err
	}

	o.ServiceTypes = make([]domain.ServiceType, len(serviceTypes))
	for i, st := range serviceTypes {
		o.ServiceTypes[i] = domain.ServiceType(st)
	}

	if endTime.Valid {
		o.EndTime = endTime.Time
	}
	if revokedAt.Valid {
		o.RevokedAt = revokedAt.Time
	}
	if revokeReason.Valid {
		o.RevokeReason = revokeReason.String
	}

	return &o, nil
}

// GetByID retrieves an override by ID.
func (r *OverrideRepository) GetByID(ctx context.Context, id string) (*domain.Override, error) {
	query := `SELECT ` + overrideColumns + ` FROM overrides WHERE id = $1`

	row := r.q.QueryRowContext(ctx, query, id)
	o, err := scanOverride(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// GetEffective retrieves active overrides whose window contains the instant.
func (r *OverrideRepository) GetEffective(ctx context.Context, at time.Time) ([]*domain.Override, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM overrides
		WHERE status = 'active'
		  AND start_time <= $1
		  AND (end_time IS NULL OR end_time > $1)
		ORDER BY created_at DESC
	`
	return r.queryOverrides(ctx, query, at)
}

// GetAll retrieves all overrides regardless of status.
func (r *OverrideRepository) GetAll(ctx context.Context) ([]*domain.Override, error) {
	query := `SELECT ` + overrideColumns + ` FROM overrides ORDER BY created_at DESC LIMIT 500`
	return r.queryOverrides(ctx, query)
}

func (r *OverrideRepository) queryOverrides(ctx context.Context, query string, args ...any) ([]*domain.Override, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []*domain.Override
	for rows.Next() {
		o, err := scanOverride(rows.Scan)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// Revoke transitions an override to revoked.
func (r *OverrideRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE overrides
		SET status = 'revoked', revoked_at = $1, revoke_reason = $2
		WHERE id = $3 AND status = 'active'
	`

	result, err := r.q.ExecContext(ctx, query, at, reason, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkExpired sweeps active overrides whose end time has passed.
func (r *OverrideRepository) MarkExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE overrides
		SET status = 'expired'
		WHERE status = 'active' AND end_time IS NOT NULL AND end_time <= $1
		RETURNING id
	`

	rows, err := r.q.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
