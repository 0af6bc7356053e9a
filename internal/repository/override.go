package repository

import (
	"context"
	"time"

	"fare/internal/domain"
)

// OverrideRepository persists operator overrides. Records are never
// deleted; revocation and expiry are status transitions kept for audit.
type OverrideRepository interface {
	// Create persists a new override.
	Create(ctx context.Context, o *domain.Override) error

	// GetByID retrieves an override by ID.
	GetByID(ctx context.Context, id string) (*domain.Override, error)

	// GetEffective retrieves overrides whose status is active and whose
	// validity window contains the given instant.
	GetEffective(ctx context.Context, at time.Time) ([]*domain.Override, error)

	// GetAll retrieves all overrides regardless of status.
	GetAll(ctx context.Context) ([]*domain.Override, error)

	// Revoke transitions an override to revoked with a timestamp and reason.
	Revoke(ctx context.Context, id, reason string, at time.Time) error

	// MarkExpired transitions every active override whose end time has
	// passed to expired, returning the affected ids.
	MarkExpired(ctx context.Context, now time.Time) ([]string, error)
}
