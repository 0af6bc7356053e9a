package redis

import (
	"context"
	"time"

	"fare/internal/domain"
	"fare/internal/geo"
)

// SurgeStateStoreInterface is the keyed store for surge snapshots. The
// narrow get/put/compare-and-swap surface allows a future swap to a
// distributed cache without touching callers.
type SurgeStateStoreInterface interface {
	Get(ctx context.Context, cell geo.CellID, st domain.ServiceType) (*domain.SurgeState, error)
	Put(ctx context.Context, state *domain.SurgeState) error
	CompareAndSwap(ctx context.Context, state *domain.SurgeState, expectedVersion int64) (bool, error)
	List(ctx context.Context) ([]*domain.SurgeState, error)
}

// ActivityStoreInterface tracks driver supply, rider demand and active
// trips per cell, and the set of currently active cells.
type ActivityStoreInterface interface {
	UpdateDriverLocation(ctx context.Context, driverID string, st domain.ServiceType, lat, lng float64) error
	RemoveDriverLocation(ctx context.Context, driverID string, st domain.ServiceType) error
	RecordDemand(ctx context.Context, cell geo.CellID, st domain.ServiceType) error
	SetActiveTrips(ctx context.Context, cell geo.CellID, st domain.ServiceType, count int) error
	Counts(ctx context.Context, cell geo.CellID, st domain.ServiceType) (domain.Counts, error)
	ActiveCells(ctx context.Context, window time.Duration) ([]geo.CellID, error)
}

// RunStoreInterface persists simulation runs with TTL-based retention.
type RunStoreInterface interface {
	Save(ctx context.Context, run *domain.SimulationRun) error
	Get(ctx context.Context, id string) (*domain.SimulationRun, error)
	List(ctx context.Context) ([]*domain.SimulationRun, error)
}

// LockStoreInterface provides coarse mutual exclusion between instances,
// used to keep surge sweeps from overlapping.
type LockStoreInterface interface {
	AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context) error
}

// Ensure concrete types implement interfaces.
var (
	_ SurgeStateStoreInterface = (*SurgeStateStore)(nil)
	_ ActivityStoreInterface   = (*ActivityStore)(nil)
	_ RunStoreInterface        = (*RunStore)(nil)
	_ LockStoreInterface       = (*LockStore)(nil)
)
