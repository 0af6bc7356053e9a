package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"fare/internal/domain"
	"fare/internal/geo"
	"fare/internal/redis"
	"fare/internal/repository"
)

// SurgeConfig tunes the recomputation loop.
type SurgeConfig struct {
	// StateTTL is the surge record lifetime. Must exceed the sweep
	// interval so fresh records are always available between sweeps.
	StateTTL time.Duration
	// ActivityWindow bounds how far back a cell's last activity may be
	// for the sweep to still recompute it.
	ActivityWindow time.Duration
	// Workers bounds concurrent per-cell recomputations.
	Workers int
	// LockTTL guards against a crashed sweeper holding the lock forever.
	LockTTL time.Duration
}

func (c *SurgeConfig) applyDefaults() {
	if c.StateTTL <= 0 {
		c.StateTTL = 2 * time.Minute
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = 10 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 25 * time.Second
	}
}

// SurgeStateService owns the surge lifecycle: the periodic sweep that
// recomputes multipliers for active cells, and the read surface behind
// the surge heatmap.
type SurgeStateService struct {
	store     redis.SurgeStateStoreInterface
	activity  redis.ActivityStoreInterface
	lock      redis.LockStoreInterface
	rules     repository.RuleRepository
	factors   FactorProvider
	overrides OverrideSource
	cfg       SurgeConfig
}

// NewSurgeStateService creates a new SurgeStateService.
func NewSurgeStateService(
	store redis.SurgeStateStoreInterface,
	activity redis.ActivityStoreInterface,
	lock redis.LockStoreInterface,
	rules repository.RuleRepository,
	factors FactorProvider,
	overrides OverrideSource,
	cfg SurgeConfig,
) *SurgeStateService {
	cfg.applyDefaults()
	return &SurgeStateService{
		store:     store,
		activity:  activity,
		lock:      lock,
		rules:     rules,
		factors:   factors,
		overrides: overrides,
		cfg:       cfg,
	}
}

// Get returns the surge record for one cell and service type, or nil when
// none exists. Callers must go through EffectiveMultiplier, which treats
// expired records as no surge.
func (s *SurgeStateService) Get(ctx context.Context, cell geo.CellID, st domain.ServiceType) (*domain.SurgeState, error) {
	if !cell.Valid() {
		return nil, ErrInvalidCoordinates
	}
	return s.store.Get(ctx, cell, st)
}

// Heatmap returns every stored surge record, expired ones included so
// dashboards can show decay.
func (s *SurgeStateService) Heatmap(ctx context.Context) ([]*domain.SurgeState, error) {
	return s.store.List(ctx)
}

// ReportDriverLocation records a driver's position for supply counting.
func (s *SurgeStateService) ReportDriverLocation(ctx context.Context, driverID string, st domain.ServiceType, lat, lng float64) (geo.CellID, error) {
	if !geo.ValidLatLng(lat, lng) {
		return "", ErrInvalidCoordinates
	}
	cell, err := geo.CellForLatLng(lat, lng, geo.DefaultResolution)
	if err != nil {
		return "", err
	}
	return cell, s.activity.UpdateDriverLocation(ctx, driverID, st, lat, lng)
}

// RecordDemand counts one ride request against a cell.
func (s *SurgeStateService) RecordDemand(ctx context.Context, lat, lng float64, st domain.ServiceType) (geo.CellID, error) {
	if !geo.ValidLatLng(lat, lng) {
		return "", ErrInvalidCoordinates
	}
	cell, err := geo.CellForLatLng(lat, lng, geo.DefaultResolution)
	if err != nil {
		return "", err
	}
	return cell, s.activity.RecordDemand(ctx, cell, st)
}

// Sweep recomputes surge for every recently active cell across all service
// types with an effective pricing rule. A distributed lock keeps concurrent
// instances from sweeping simultaneously; a per-cell failure is logged and
// skipped so one bad cell never aborts the batch.
func (s *SurgeStateService) Sweep(ctx context.Context) error {
	acquired, err := s.lock.AcquireSweepLock(ctx, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.lock.ReleaseSweepLock(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[SURGE] failed to release sweep lock: %v", err)
		}
	}()

	now := time.Now()

	cells, err := s.activity.ActiveCells(ctx, s.cfg.ActivityWindow)
	if err != nil {
		return err
	}
	if len(cells) == 0 {
		return nil
	}

	serviceTypes, err := s.rules.ServiceTypes(ctx, now)
	if err != nil {
		return err
	}

	overrides, err := s.overrides.EffectiveOverrides(ctx, now)
	if err != nil {
		// Sweep with no overrides rather than skip the sweep; the quote
		// path applies overrides independently at read time.
		log.Printf("[SURGE] override read failed, sweeping without overrides: %v", err)
		overrides = nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, cell := range cells {
		for _, st := range serviceTypes {
			cell, st := cell, st
			g.Go(func() error {
				if err := s.recomputeCell(gctx, cell, st, overrides, now); err != nil {
					log.Printf("[SURGE] recompute %s/%s failed: %v", cell, st, err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}

// recomputeCell computes and stores one (cell, service type) surge record.
// The multiplier math is shared with the quote engine via
// domain.ComposeSurgeMultiplier; the write uses compare-and-swap so a
// concurrent sweeper cannot regress the version.
func (s *SurgeStateService) recomputeCell(ctx context.Context, cell geo.CellID, st domain.ServiceType, overrides []*domain.Override, now time.Time) error {
	counts, err := s.activity.Counts(ctx, cell, st)
	if err != nil {
		return err
	}

	factors, err := s.factors.Factors(ctx, cell, now)
	if err != nil {
		factors = domain.NeutralFactors()
		factors.TimeOfDay = domain.TimeOfDayFactor(now)
	}

	rule, err := s.rules.GetRule(ctx, st, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	ratio := domain.ComputeSupplyDemandRatio(counts.Supply, counts.Demand)
	multiplier := domain.ComposeSurgeMultiplier(ratio, factors)

	lat, lng := cell.Center()
	effective := EffectiveByType(overrides, cell, lat, lng, st, now)

	// An active cap override replaces the rule cap, matching the quote path.
	surgeCap := rule.SurgeCap
	if o := effective[domain.OverrideCapSurge]; o != nil && o.Parameters.CapValue != nil {
		surgeCap = *o.Parameters.CapValue
	}
	if effective[domain.OverrideDisableSurge] != nil {
		multiplier = 1.0
	} else {
		if multiplier > surgeCap {
			multiplier = surgeCap
		}
		if multiplier < 1.0 {
			multiplier = 1.0
		}
	}
	multiplier = domain.Round2(multiplier)

	prev, err := s.store.Get(ctx, cell, st)
	if err != nil {
		return err
	}
	var expectedVersion int64
	if prev != nil {
		expectedVersion = prev.Version
	}

	state := &domain.SurgeState{
		CellID:            string(cell),
		ServiceType:       st,
		CurrentMultiplier: multiplier,
		SupplyCount:       counts.Supply,
		DemandCount:       counts.Demand,
		SupplyDemandRatio: ratio,
		ActiveTripCount:   counts.ActiveTrips,
		Factors:           factors,
		ComputedAt:        now,
		ExpiresAt:         now.Add(s.cfg.StateTTL),
		Version:           expectedVersion + 1,
	}

	ok, err := s.store.CompareAndSwap(ctx, state, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		// Another sweeper got there first; its snapshot is at least as
		// fresh as ours.
		return nil
	}
	return nil
}
