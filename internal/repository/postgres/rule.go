package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fare/internal/domain"
	"fare/internal/repository"
)

// RuleRepository is a PostgreSQL implementation of repository.RuleRepository.
type RuleRepository struct {
	q Querier
}

// NewRuleRepository creates a new PostgreSQL rule repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{q: db}
}

// GetRule retrieves the rule effective for a service type at an instant.
// When several published rules overlap, the most recently effective wins
// (a new rule supersedes rather than mutates an old one).
func (r *RuleRepository) GetRule(ctx context.Context, st domain.ServiceType, at time.Time) (*domain.PricingRule, error) {
	query := `
		SELECT id, service_type, base_fare, per_km_rate, per_min_rate, surge_cap, max_fare_multiplier, regulator_approved, geographic_scope, effective_from, effective_until
		FROM pricing_rules
		WHERE service_type = $1
		  AND effective_from <= $2
		  AND (effective_until IS NULL OR effective_until > $2)
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var rule domain.PricingRule
	var effectiveUntil sql.NullTime

	err := r.q.QueryRowContext(ctx, query, st, at).Scan(
		&rule.ID,
		&rule.ServiceType,
		&rule.BaseFare,
		&rule.PerKmRate,
		&rule.PerMinRate,
		&rule.SurgeCap,
		&rule.MaxFareMultiplier,
		&rule.RegulatorApproved,
		&rule.GeographicScope,
		&rule.EffectiveFrom,
		&effectiveUntil,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if effectiveUntil.Valid {
		rule.EffectiveUntil = effectiveUntil.Time
	}

	return &rule, nil
}

// ServiceTypes lists service types with a currently effective rule.
func (r *RuleRepository) ServiceTypes(ctx context.Context, at time.Time) ([]domain.ServiceType, error) {
	query := `
		SELECT DISTINCT service_type
		FROM pricing_rules
		WHERE effective_from <= $1
		  AND (effective_until IS NULL OR effective_until > $1)
		ORDER BY service_type
	`

	rows, err := r.q.QueryContext(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.ServiceType
	for rows.Next() {
		var st domain.ServiceType
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		types = append(types, st)
	}
	return types, rows.Err()
}
