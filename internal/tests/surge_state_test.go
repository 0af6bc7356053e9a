package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"fare/internal/domain"
	"fare/internal/geo"
	"fare/internal/service"
)

// ──────────────────────────────────────────────
// 1. SURGE SWEEP
// ──────────────────────────────────────────────

func newSweeper(rules *MockRuleRepository, store *MockSurgeStore, activity *MockActivityStore, lock *MockLockStore, src *StaticOverrideSource) *service.SurgeStateService {
	if src == nil {
		src = &StaticOverrideSource{}
	}
	return service.NewSurgeStateService(
		store, activity, lock, rules,
		&service.StaticFactorProvider{Fixed: domain.NeutralFactors()},
		src,
		service.SurgeConfig{StateTTL: 2 * time.Minute, Workers: 2},
	)
}

func mustCell(t *testing.T, lat, lng float64) geo.CellID {
	t.Helper()
	cell, err := geo.CellForLatLng(lat, lng, geo.DefaultResolution)
	if err != nil {
		t.Fatalf("cell derivation failed: %v", err)
	}
	return cell
}

func TestSweep_ComputesTierFromCounts(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	activity := NewMockActivityStore()

	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 10, Demand: 32})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), nil)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	state, err := store.Get(context.Background(), cell, "standard")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if state == nil {
		t.Fatal("expected a surge record")
	}
	if state.SupplyDemandRatio != 3.2 {
		t.Errorf("expected ratio 3.2, got %v", state.SupplyDemandRatio)
	}
	if state.CurrentMultiplier != 2.5 {
		t.Errorf("expected multiplier 2.5 for ratio 3.2, got %v", state.CurrentMultiplier)
	}
	if state.Version != 1 {
		t.Errorf("expected version 1 on first write, got %d", state.Version)
	}
	if state.Expired(time.Now()) {
		t.Error("freshly written state must not be expired")
	}
}

func TestSweep_MatchesQuoteEngineComposition(t *testing.T) {
	t.Parallel()

	// The sweeper and the quote engine must price identical inputs
	// identically. Run the sweep, then quote against the swept state and
	// against the raw inputs; the multipliers must agree.
	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	activity := NewMockActivityStore()

	req := standardRequest()
	cell := mustCell(t, req.PickupLat, req.PickupLng)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 10, Demand: 17})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), nil)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state == nil {
		t.Fatal("expected a surge record")
	}

	// Pin the quote to the sweep's snapshot instant so both paths see the
	// same time-of-day factor.
	req.Timestamp = state.ComputedAt

	engine := newQuoteEngine(rules, store, nil, &service.StaticFactorProvider{Fixed: domain.NeutralFactors()}, nil)
	quote, err := engine.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	want := domain.Round2(domain.ComposeSurgeMultiplier(
		domain.ComputeSupplyDemandRatio(10, 17), domain.NeutralFactors()))
	if state.CurrentMultiplier != want {
		t.Errorf("sweeper multiplier %v, want %v", state.CurrentMultiplier, want)
	}
	if quote.SurgeMultiplier != want {
		t.Errorf("quote multiplier %v, want %v", quote.SurgeMultiplier, want)
	}
}

func TestSweep_AppliesCapAndDisableOverrides(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())

	capValue := 1.3
	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-cap",
		Type:         domain.OverrideCapSurge,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Parameters:   domain.OverrideParameters{CapValue: &capValue},
		Status:       domain.OverrideStatusActive,
		StartTime:    time.Now().Add(-time.Hour),
	}}}

	store := NewMockSurgeStore()
	activity := NewMockActivityStore()
	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 5, Demand: 40})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), src)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state == nil {
		t.Fatal("expected a surge record")
	}
	if state.CurrentMultiplier != 1.3 {
		t.Errorf("expected multiplier capped at 1.3, got %v", state.CurrentMultiplier)
	}
}

func TestSweep_CapOverrideAboveRuleCap_ReplacesIt(t *testing.T) {
	t.Parallel()

	rule := standardRule()
	rule.SurgeCap = 2.0
	rules := NewMockRuleRepository()
	rules.AddRule(rule)

	capValue := 2.4
	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-cap-raise",
		Type:         domain.OverrideCapSurge,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Parameters:   domain.OverrideParameters{CapValue: &capValue},
		Status:       domain.OverrideStatusActive,
		StartTime:    time.Now().Add(-time.Hour),
	}}}

	store := NewMockSurgeStore()
	activity := NewMockActivityStore()
	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 5, Demand: 40})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), src)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state == nil {
		t.Fatal("expected a surge record")
	}
	if state.CurrentMultiplier != 2.4 {
		t.Errorf("expected override cap 2.4 to replace the rule cap, got %v", state.CurrentMultiplier)
	}
}

func TestSweep_PerCellFailure_DoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	activity := NewMockActivityStore()
	activity.CountsError = errors.New("geo radius failed")

	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 1, Demand: 5})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), nil)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep must not propagate per-cell failures, got: %v", err)
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state != nil {
		t.Error("expected no record for the failed cell")
	}
}

func TestSweep_LockHeld_Skips(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	activity := NewMockActivityStore()
	lock := NewMockLockStore()
	lock.AcquireResult = false

	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 1, Demand: 10})

	sweeper := newSweeper(rules, store, activity, lock, nil)
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state != nil {
		t.Error("expected no writes while another instance holds the lock")
	}
}

func TestSweep_IncrementsVersion(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	activity := NewMockActivityStore()

	cell := mustCell(t, 14.5995, 120.9842)
	activity.SetCounts(cell, "standard", domain.Counts{Supply: 10, Demand: 25})

	sweeper := newSweeper(rules, store, activity, NewMockLockStore(), nil)
	for i := 0; i < 3; i++ {
		if err := sweeper.Sweep(context.Background()); err != nil {
			t.Fatalf("sweep %d failed: %v", i, err)
		}
	}

	state, _ := store.Get(context.Background(), cell, "standard")
	if state == nil || state.Version != 3 {
		t.Fatalf("expected version 3 after three sweeps, got %+v", state)
	}
}

// ──────────────────────────────────────────────
// 2. DEMAND TIERS
// ──────────────────────────────────────────────

func TestDemandTierMultiplier_Boundaries(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		ratio float64
		want  float64
	}{
		{0, 1.0},
		{1.19, 1.0},
		{1.2, 1.2},
		{1.49, 1.2},
		{1.5, 1.5},
		{1.99, 1.5},
		{2.0, 2.0},
		{2.99, 2.0},
		{3.0, 2.5},
		{10, 2.5},
	}

	for _, tc := range testCases {
		if got := domain.DemandTierMultiplier(tc.ratio); got != tc.want {
			t.Errorf("ratio %v: expected %v, got %v", tc.ratio, tc.want, got)
		}
	}
}

func TestComputeSupplyDemandRatio_SupplyFloor(t *testing.T) {
	t.Parallel()

	if got := domain.ComputeSupplyDemandRatio(0, 4); got != 4.0 {
		t.Errorf("zero supply must floor to 1, got ratio %v", got)
	}
	if got := domain.ComputeSupplyDemandRatio(8, 4); got != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", got)
	}
}

// ──────────────────────────────────────────────
// 3. ACTIVITY SIGNALS
// ──────────────────────────────────────────────

func TestReportDriverLocation_InvalidCoordinates_Rejected(t *testing.T) {
	t.Parallel()

	sweeper := newSweeper(NewMockRuleRepository(), NewMockSurgeStore(), NewMockActivityStore(), NewMockLockStore(), nil)

	_, err := sweeper.ReportDriverLocation(context.Background(), "drv-1", "standard", 95, 120)
	if !errors.Is(err, service.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got: %v", err)
	}
}

func TestRecordDemand_ReturnsCell(t *testing.T) {
	t.Parallel()

	sweeper := newSweeper(NewMockRuleRepository(), NewMockSurgeStore(), NewMockActivityStore(), NewMockLockStore(), nil)

	cell, err := sweeper.RecordDemand(context.Background(), 14.5995, 120.9842, "standard")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cell.Valid() || cell.Resolution() != geo.DefaultResolution {
		t.Errorf("expected a valid default-resolution cell, got %q", cell)
	}
}
