package repository

import (
	"context"
	"time"

	"fare/internal/domain"
)

// AuditRepository persists the quote trail and override lifecycle events,
// and serves the simulation engine's historical baseline.
type AuditRepository interface {
	// RecordQuote persists one quote audit record.
	RecordQuote(ctx context.Context, a *domain.QuoteAudit) error

	// RecordOverrideEvent persists one override lifecycle event.
	RecordOverrideEvent(ctx context.Context, a *domain.OverrideAudit) error

	// BaselineStats aggregates the quote trail over a trailing window into
	// per-day revenue and trip volume. Returns ErrNotFound when the window
	// holds no data.
	BaselineStats(ctx context.Context, window time.Duration) (*domain.BaselineStats, error)
}
