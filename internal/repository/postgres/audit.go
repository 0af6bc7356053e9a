package postgres

import (
	"context"
	"database/sql"
	"time"

	"fare/internal/domain"
	"fare/internal/repository"
)

// AuditRepository is a PostgreSQL implementation of repository.AuditRepository.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{q: db}
}

// RecordQuote persists one quote audit record.
func (r *AuditRepository) RecordQuote(ctx context.Context, a *domain.QuoteAudit) error {
	query := `
		INSERT INTO quote_audits (id, quote_id, service_type, cell_id, pickup_lat, pickup_lng, distance_km, duration_min, subtotal, surge_multiplier, total_fare, regulatory_clamped, degraded, degraded_reason, processing_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var degradedReason sql.NullString
	if a.DegradedReason != "" {
		degradedReason = sql.NullString{String: a.DegradedReason, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		a.ID,
		a.QuoteID,
		a.ServiceType,
		a.CellID,
		a.PickupLat,
		a.PickupLng,
		a.DistanceKm,
		a.DurationMin,
		a.Subtotal,
		a.SurgeMultiplier,
		a.TotalFare,
		a.RegulatoryClamped,
		a.Degraded,
		degradedReason,
		a.ProcessingMs,
		a.CreatedAt,
	)
	return err
}

// RecordOverrideEvent persists one override lifecycle event.
func (r *AuditRepository) RecordOverrideEvent(ctx context.Context, a *domain.OverrideAudit) error {
	query := `
		INSERT INTO override_audits (id, override_id, action, type, operator_id, reason, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		a.ID,
		a.OverrideID,
		a.Action,
		a.Type,
		a.OperatorID,
		a.Reason,
		a.Priority,
		a.CreatedAt,
	)
	return err
}

// BaselineStats aggregates the quote trail into a per-day baseline for the
// simulation engine. Trip volume is approximated by accepted quotes.
func (r *AuditRepository) BaselineStats(ctx context.Context, window time.Duration) (*domain.BaselineStats, error) {
	since := time.Now().Add(-window)
	days := window.Hours() / 24
	if days < 1 {
		days = 1
	}

	var totalRevenue float64
	var totalQuotes int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_fare), 0), COUNT(*) FROM quote_audits WHERE created_at >= $1 AND NOT degraded`,
		since,
	).Scan(&totalRevenue, &totalQuotes)
	if err != nil {
		return nil, err
	}
	if totalQuotes == 0 {
		return nil, repository.ErrNotFound
	}

	stats := &domain.BaselineStats{
		DailyRevenue:      totalRevenue / days,
		DailyTrips:        float64(totalQuotes) / days,
		ServiceTypeShares: make(map[domain.ServiceType]float64),
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT service_type, COUNT(*) FROM quote_audits WHERE created_at >= $1 AND NOT degraded GROUP BY service_type`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.ServiceType
		var count int64
		if err := rows.Scan(&st, &count); err != nil {
			return nil, err
		}
		stats.ServiceTypeShares[st] = float64(count) / float64(totalQuotes)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
