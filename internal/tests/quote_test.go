package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"fare/internal/domain"
	"fare/internal/service"
)

// ──────────────────────────────────────────────
// 1. QUOTE COMPUTATION
// ──────────────────────────────────────────────

var quoteTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // midday, neutral time-of-day

func standardRule() *domain.PricingRule {
	return &domain.PricingRule{
		ID:                "rule-standard",
		ServiceType:       "standard",
		BaseFare:          50,
		PerKmRate:         12,
		PerMinRate:        2,
		SurgeCap:          3.0,
		MaxFareMultiplier: 3.0,
		RegulatorApproved: true,
		GeographicScope:   "metro-manila",
		EffectiveFrom:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func standardRequest() service.QuoteRequest {
	return service.QuoteRequest{
		ServiceType:          "standard",
		PickupLat:            14.5995,
		PickupLng:            120.9842,
		DropoffLat:           14.5547,
		DropoffLng:           121.0244,
		EstimatedDistanceKm:  10,
		EstimatedDurationMin: 20,
		Timestamp:            quoteTime,
	}
}

func newQuoteEngine(rules *MockRuleRepository, store *MockSurgeStore, src *StaticOverrideSource, factors service.FactorProvider, sink *MockAuditSink) *service.QuoteEngine {
	if src == nil {
		src = &StaticOverrideSource{}
	}
	if factors == nil {
		factors = &service.StaticFactorProvider{Fixed: domain.NeutralFactors()}
	}
	// A typed-nil *MockAuditSink must not reach the engine as a non-nil
	// interface value.
	var audit service.AuditSink
	if sink != nil {
		audit = sink
	}
	return service.NewQuoteEngine(rules, store, src, factors, audit, service.QuoteConfig{Currency: "PHP"})
}

func TestQuote_NoSurge_SubtotalComponents(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	sink := NewMockAuditSink()

	engine := newQuoteEngine(rules, store, nil, nil, sink)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if quote.BaseFare != 50 {
		t.Errorf("expected base fare 50, got %v", quote.BaseFare)
	}
	if quote.DistanceFare != 120 {
		t.Errorf("expected distance fare 120, got %v", quote.DistanceFare)
	}
	if quote.TimeFare != 40 {
		t.Errorf("expected time fare 40, got %v", quote.TimeFare)
	}
	if quote.Subtotal != 210 {
		t.Errorf("expected subtotal 210, got %v", quote.Subtotal)
	}
	if quote.SurgeMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0 with no surge state, got %v", quote.SurgeMultiplier)
	}
	if quote.TotalFare != 210 {
		t.Errorf("expected total 210, got %v", quote.TotalFare)
	}
	if quote.Currency != "PHP" {
		t.Errorf("expected currency PHP, got %s", quote.Currency)
	}
	if !quote.Compliance.LTFRBCompliant {
		t.Error("expected quote to be compliant")
	}
	if quote.Degraded {
		t.Error("expected a non-degraded quote")
	}
	if sink.Last() == nil {
		t.Error("expected an audit event")
	}
}

func TestQuote_HighDemand_TierMultiplierApplied(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	sink := NewMockAuditSink()

	engine := newQuoteEngine(rules, store, nil, nil, sink)

	// First quote discovers the pickup cell; then seed that cell.
	q, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("setup quote failed: %v", err)
	}
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		CurrentMultiplier: 2.5,
		SupplyDemandRatio: 3.2,
		ComputedAt:        quoteTime,
		ExpiresAt:         quoteTime.Add(2 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if quote.SurgeMultiplier != 2.5 {
		t.Errorf("expected multiplier 2.5 for ratio 3.2, got %v", quote.SurgeMultiplier)
	}
	if quote.TotalFare != 525 {
		t.Errorf("expected total 525, got %v", quote.TotalFare)
	}
	if quote.SurgeAmount != 315 {
		t.Errorf("expected surge amount 315, got %v", quote.SurgeAmount)
	}
}

func TestQuote_ExpiredSurgeState_NoSurge(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()

	engine := newQuoteEngine(rules, store, nil, nil, nil)

	q, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("setup quote failed: %v", err)
	}
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		CurrentMultiplier: 2.5,
		SupplyDemandRatio: 3.2,
		ComputedAt:        quoteTime.Add(-10 * time.Minute),
		ExpiresAt:         quoteTime.Add(-8 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if quote.SurgeMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0 for expired state, got %v", quote.SurgeMultiplier)
	}
	if quote.Degraded {
		t.Error("expired state is not a degradation")
	}
}

func TestQuote_SurgeCappedByRule(t *testing.T) {
	t.Parallel()

	rule := standardRule()
	rule.SurgeCap = 2.0
	rule.MaxFareMultiplier = 5.0 // keep the regulator out of this test
	rules := NewMockRuleRepository()
	rules.AddRule(rule)
	store := NewMockSurgeStore()

	engine := newQuoteEngine(rules, store, nil, nil, nil)

	q, _ := engine.Quote(context.Background(), standardRequest())
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		SupplyDemandRatio: 3.2,
		ExpiresAt:         quoteTime.Add(2 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if quote.SurgeMultiplier != 2.0 {
		t.Errorf("expected multiplier capped at 2.0, got %v", quote.SurgeMultiplier)
	}
}

func TestQuote_CapSurgeOverride_Applied(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()

	capValue := 1.3
	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-cap",
		Type:         domain.OverrideCapSurge,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Parameters:   domain.OverrideParameters{CapValue: &capValue},
		Status:       domain.OverrideStatusActive,
		StartTime:    quoteTime.Add(-time.Hour),
	}}}

	engine := newQuoteEngine(rules, store, src, nil, nil)

	q, _ := engine.Quote(context.Background(), standardRequest())
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		SupplyDemandRatio: 3.2,
		ExpiresAt:         quoteTime.Add(2 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if quote.SurgeMultiplier != 1.3 {
		t.Errorf("expected multiplier 1.3 under cap override, got %v", quote.SurgeMultiplier)
	}
	if quote.TotalFare != 273 {
		t.Errorf("expected total 273, got %v", quote.TotalFare)
	}
}

func TestQuote_DisableSurgeOverride_ForcesNeutral(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()

	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-disable",
		Type:         domain.OverrideDisableSurge,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Status:       domain.OverrideStatusActive,
		StartTime:    quoteTime.Add(-time.Hour),
	}}}

	engine := newQuoteEngine(rules, store, src, nil, nil)

	q, _ := engine.Quote(context.Background(), standardRequest())
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		SupplyDemandRatio: 3.2,
		ExpiresAt:         quoteTime.Add(2 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if quote.SurgeMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0 under disable override, got %v", quote.SurgeMultiplier)
	}
	if quote.TotalFare != 210 {
		t.Errorf("expected total 210, got %v", quote.TotalFare)
	}
}

func TestQuote_SuspendServiceOverride_Rejected(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())

	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-suspend",
		Type:         domain.OverrideSuspendService,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Status:       domain.OverrideStatusActive,
		StartTime:    quoteTime.Add(-time.Hour),
	}}}

	engine := newQuoteEngine(rules, NewMockSurgeStore(), src, nil, nil)

	_, err := engine.Quote(context.Background(), standardRequest())
	if !errors.Is(err, service.ErrServiceSuspended) {
		t.Fatalf("expected ErrServiceSuspended, got: %v", err)
	}
}

func TestQuote_FareAdjustmentOverride_AppliedAfterSurge(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())

	pct := 10.0
	src := &StaticOverrideSource{Overrides: []*domain.Override{{
		ID:           "ov-adjust",
		Type:         domain.OverrideFareAdjustment,
		Scope:        domain.GeographicScope{Type: domain.ScopeCity, City: "manila"},
		ServiceTypes: []domain.ServiceType{"standard"},
		Parameters:   domain.OverrideParameters{AdjustmentPct: &pct},
		Status:       domain.OverrideStatusActive,
		StartTime:    quoteTime.Add(-time.Hour),
	}}}

	engine := newQuoteEngine(rules, NewMockSurgeStore(), src, nil, nil)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if quote.TotalFare != 231 {
		t.Errorf("expected total 231 after +10%% adjustment, got %v", quote.TotalFare)
	}
}

func TestQuote_RegulatoryClamp_MarksNonCompliant(t *testing.T) {
	t.Parallel()

	rule := standardRule()
	rule.MaxFareMultiplier = 2.0
	rules := NewMockRuleRepository()
	rules.AddRule(rule)
	store := NewMockSurgeStore()
	sink := NewMockAuditSink()

	engine := newQuoteEngine(rules, store, nil, nil, sink)

	q, _ := engine.Quote(context.Background(), standardRequest())
	store.SetState(&domain.SurgeState{
		CellID:            q.CellID,
		ServiceType:       "standard",
		SupplyDemandRatio: 3.2,
		ExpiresAt:         quoteTime.Add(2 * time.Minute),
		Version:           1,
	})

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if quote.TotalFare != 420 {
		t.Errorf("expected total clamped to 420, got %v", quote.TotalFare)
	}
	if quote.SurgeMultiplier != 2.0 {
		t.Errorf("expected implied multiplier 2.0 after clamp, got %v", quote.SurgeMultiplier)
	}
	if quote.Compliance.LTFRBCompliant {
		t.Error("expected non-compliant flag after clamp")
	}
	if !quote.Compliance.Corrected {
		t.Error("expected corrected flag after clamp")
	}
	if len(quote.Compliance.Violations) == 0 {
		t.Error("expected a recorded violation")
	}
	if last := sink.Last(); last == nil || !last.RegulatoryClamped {
		t.Error("expected audit to record the clamp")
	}
}

// ──────────────────────────────────────────────
// 2. DEGRADED QUOTES
// ──────────────────────────────────────────────

func TestQuote_FactorFetchFails_DegradesToSubtotal(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	sink := NewMockAuditSink()

	factors := &service.StaticFactorProvider{Err: errors.New("aggregator timeout")}
	engine := newQuoteEngine(rules, NewMockSurgeStore(), nil, factors, sink)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected degraded quote, got error: %v", err)
	}

	if !quote.Degraded {
		t.Fatal("expected degraded flag")
	}
	if quote.SurgeMultiplier != 1.0 {
		t.Errorf("expected multiplier 1.0 in degraded mode, got %v", quote.SurgeMultiplier)
	}
	if quote.TotalFare != 210 {
		t.Errorf("expected subtotal-only total 210, got %v", quote.TotalFare)
	}
	if !quote.Compliance.LTFRBCompliant {
		t.Error("degraded quote must be trivially compliant")
	}
	if last := sink.Last(); last == nil || !last.Degraded || last.DegradedReason == "" {
		t.Error("expected audit to record the degradation reason")
	}
}

func TestQuote_SurgeStoreFails_DegradesToSubtotal(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	store := NewMockSurgeStore()
	store.GetError = errors.New("redis down")

	engine := newQuoteEngine(rules, store, nil, nil, nil)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected degraded quote, got error: %v", err)
	}
	if !quote.Degraded {
		t.Fatal("expected degraded flag")
	}
}

func TestQuote_OverrideSourceFails_DegradesToSubtotal(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	src := &StaticOverrideSource{Err: errors.New("postgres down")}

	engine := newQuoteEngine(rules, NewMockSurgeStore(), src, nil, nil)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected degraded quote, got error: %v", err)
	}
	if !quote.Degraded {
		t.Fatal("expected degraded flag")
	}
}

func TestQuote_UnknownServiceType_Fatal(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())

	engine := newQuoteEngine(rules, NewMockSurgeStore(), nil, nil, nil)

	req := standardRequest()
	req.ServiceType = "helicopter"
	_, err := engine.Quote(context.Background(), req)
	if !errors.Is(err, service.ErrUnknownServiceType) {
		t.Fatalf("expected ErrUnknownServiceType, got: %v", err)
	}
}

func TestQuote_NoAuditSink_StillQuotes(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())

	engine := newQuoteEngine(rules, NewMockSurgeStore(), nil, nil, nil)

	quote, err := engine.Quote(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if quote.TotalFare != 210 {
		t.Errorf("expected total fare 210, got: %v", quote.TotalFare)
	}
}

// ──────────────────────────────────────────────
// 3. INPUT VALIDATION
// ──────────────────────────────────────────────

func TestQuote_InvalidInput_Rejected(t *testing.T) {
	t.Parallel()

	rules := NewMockRuleRepository()
	rules.AddRule(standardRule())
	engine := newQuoteEngine(rules, NewMockSurgeStore(), nil, nil, nil)

	testCases := []struct {
		name    string
		mutate  func(*service.QuoteRequest)
		wantErr error
	}{
		{
			name:    "latitude out of range",
			mutate:  func(r *service.QuoteRequest) { r.PickupLat = 91 },
			wantErr: service.ErrInvalidCoordinates,
		},
		{
			name:    "longitude out of range",
			mutate:  func(r *service.QuoteRequest) { r.DropoffLng = -181 },
			wantErr: service.ErrInvalidCoordinates,
		},
		{
			name:    "negative distance",
			mutate:  func(r *service.QuoteRequest) { r.EstimatedDistanceKm = -1 },
			wantErr: service.ErrInvalidDistance,
		},
		{
			name:    "negative duration",
			mutate:  func(r *service.QuoteRequest) { r.EstimatedDurationMin = -5 },
			wantErr: service.ErrInvalidDuration,
		},
		{
			name:    "empty service type",
			mutate:  func(r *service.QuoteRequest) { r.ServiceType = "" },
			wantErr: service.ErrUnknownServiceType,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := standardRequest()
			tc.mutate(&req)
			_, err := engine.Quote(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got: %v", tc.wantErr, err)
			}
		})
	}
}
