package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fare/internal/domain"
	"fare/internal/geo"
	redisstore "fare/internal/redis"
	"fare/internal/repository"
)

// OverrideSource exposes the overrides effective at an instant. The quote
// engine and the surge sweeper both read through this.
type OverrideSource interface {
	EffectiveOverrides(ctx context.Context, at time.Time) ([]*domain.Override, error)
}

// QuoteConfig carries the deployment-fixed quoting parameters.
type QuoteConfig struct {
	Currency       string
	QuoteTTL       time.Duration
	CellResolution int
}

// QuoteEngine prices trip requests. It reads the surge store, the override
// registry and the factor aggregator, and writes nothing except an audit
// record.
type QuoteEngine struct {
	rules     repository.RuleRepository
	surge     redisstore.SurgeStateStoreInterface
	overrides OverrideSource
	factors   FactorProvider
	audit     AuditSink
	cfg       QuoteConfig
}

// NewQuoteEngine creates a new QuoteEngine.
func NewQuoteEngine(
	rules repository.RuleRepository,
	surge redisstore.SurgeStateStoreInterface,
	overrides OverrideSource,
	factors FactorProvider,
	audit AuditSink,
	cfg QuoteConfig,
) *QuoteEngine {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 5 * time.Minute
	}
	if cfg.CellResolution == 0 {
		cfg.CellResolution = geo.DefaultResolution
	}
	if cfg.Currency == "" {
		cfg.Currency = "PHP"
	}
	return &QuoteEngine{
		rules:     rules,
		surge:     surge,
		overrides: overrides,
		factors:   factors,
		audit:     audit,
		cfg:       cfg,
	}
}

// QuoteRequest contains the parameters of a trip quote.
type QuoteRequest struct {
	ServiceType          domain.ServiceType
	PickupLat            float64
	PickupLng            float64
	DropoffLat           float64
	DropoffLng           float64
	EstimatedDistanceKm  float64
	EstimatedDurationMin float64
	Timestamp            time.Time
}

// Quote computes a bounded, regulator-compliant price for a trip request.
// Collaborator failures degrade the quote to subtotal-only pricing rather
// than failing the request; only a missing pricing rule is fatal.
func (e *QuoteEngine) Quote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	start := time.Now()

	if err := e.validate(req); err != nil {
		return nil, err
	}

	at := req.Timestamp
	if at.IsZero() {
		at = start
	}

	cell, err := geo.CellForLatLng(req.PickupLat, req.PickupLng, e.cfg.CellResolution)
	if err != nil {
		return nil, ErrInvalidCoordinates
	}

	// Fetch the four inputs concurrently; none depends on another.
	var (
		rule      *domain.PricingRule
		state     *domain.SurgeState
		factors   domain.Factors
		overrides []*domain.Override

		stateErr, factorsErr, overridesErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rule, err = e.rules.GetRule(gctx, req.ServiceType, at)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownServiceType
		}
		return err
	})
	g.Go(func() error {
		state, stateErr = e.surge.Get(gctx, cell, req.ServiceType)
		return nil
	})
	g.Go(func() error {
		factors, factorsErr = e.factors.Factors(gctx, cell, at)
		return nil
	})
	g.Go(func() error {
		overrides, overridesErr = e.overrides.EffectiveOverrides(gctx, at)
		return nil
	})
	if err := g.Wait(); err != nil {
		// No rule means no safe default fare; abort rather than degrade.
		return nil, err
	}

	baseFare := domain.Round2(rule.BaseFare)
	distanceFare := domain.Round2(req.EstimatedDistanceKm * rule.PerKmRate)
	timeFare := domain.Round2(req.EstimatedDurationMin * rule.PerMinRate)
	subtotal := domain.Round2(baseFare + distanceFare + timeFare)

	if reason := degradeReason(stateErr, factorsErr, overridesErr); reason != "" {
		quote := e.degradedQuote(rule, req, cell, baseFare, distanceFare, timeFare, subtotal, at)
		e.recordAudit(quote, req, cell, start, false, reason)
		return quote, nil
	}

	effective := EffectiveByType(overrides, cell, req.PickupLat, req.PickupLng, req.ServiceType, at)

	if effective[domain.OverrideSuspendService] != nil {
		return nil, ErrServiceSuspended
	}

	// A fresh surge snapshot carries the demand ratio; expired or missing
	// records degrade to no surge, never to stale data.
	ratio := 0.0
	if state != nil && !state.Expired(at) {
		ratio = state.SupplyDemandRatio
	}

	raw := domain.ComposeSurgeMultiplier(ratio, factors)

	effectiveCap := rule.SurgeCap
	if o := effective[domain.OverrideCapSurge]; o != nil && o.Parameters.CapValue != nil {
		effectiveCap = *o.Parameters.CapValue
	}

	multiplier := raw
	if effective[domain.OverrideDisableSurge] != nil {
		multiplier = 1.0
	} else {
		if multiplier > effectiveCap {
			multiplier = effectiveCap
		}
		if multiplier < 1.0 {
			multiplier = 1.0
		}
	}
	multiplier = domain.Round2(multiplier)

	total := subtotal * multiplier

	// Emergency and fare-adjustment overrides apply after clamping to the
	// cap; the ordering is a product policy recorded in DESIGN.md.
	if o := effective[domain.OverrideEmergencyControl]; o != nil && o.Parameters.EmergencyMultiplier != nil {
		total *= *o.Parameters.EmergencyMultiplier
	}
	if o := effective[domain.OverrideFareAdjustment]; o != nil {
		if o.Parameters.AdjustmentPct != nil {
			total *= 1 + *o.Parameters.AdjustmentPct/100
		}
		if o.Parameters.FlatAmount != nil {
			total += *o.Parameters.FlatAmount
		}
	}
	if total < 0 {
		total = 0
	}
	total = domain.Round2(total)

	maxAllowed := rule.MaxAllowedFare(subtotal)
	compliance := domain.RegulatoryCompliance{
		LTFRBCompliant: true,
		MaxAllowedFare: maxAllowed,
	}

	clamped := false
	if total > maxAllowed {
		clamped = true
		compliance.LTFRBCompliant = false
		compliance.Corrected = true
		compliance.Violations = append(compliance.Violations,
			"computed fare exceeded regulatory maximum and was clamped")
		total = maxAllowed
		if subtotal > 0 {
			// Report the multiplier actually implied by the clamped total.
			multiplier = domain.Round2(total / subtotal)
		}
	}

	quote := &domain.Quote{
		QuoteID:         uuid.New().String(),
		ServiceType:     req.ServiceType,
		CellID:          string(cell),
		BaseFare:        baseFare,
		DistanceFare:    distanceFare,
		TimeFare:        timeFare,
		Subtotal:        subtotal,
		SurgeMultiplier: multiplier,
		SurgeAmount:     domain.Round2(subtotal * (multiplier - 1)),
		TotalFare:       total,
		Currency:        e.cfg.Currency,
		Compliance:      compliance,
		Factors:         factors,
		CreatedAt:       at,
		ExpiresAt:       at.Add(e.cfg.QuoteTTL),
	}

	e.recordAudit(quote, req, cell, start, clamped, "")
	return quote, nil
}

func (e *QuoteEngine) validate(req QuoteRequest) error {
	if req.ServiceType == "" {
		return ErrUnknownServiceType
	}
	if !geo.ValidLatLng(req.PickupLat, req.PickupLng) || !geo.ValidLatLng(req.DropoffLat, req.DropoffLng) {
		return ErrInvalidCoordinates
	}
	if req.EstimatedDistanceKm < 0 {
		return ErrInvalidDistance
	}
	if req.EstimatedDurationMin < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// degradedQuote prices on the subtotal alone: multiplier forced to 1.0 and
// compliance trivially satisfied. It must always succeed.
func (e *QuoteEngine) degradedQuote(rule *domain.PricingRule, req QuoteRequest, cell geo.CellID, baseFare, distanceFare, timeFare, subtotal float64, at time.Time) *domain.Quote {
	return &domain.Quote{
		QuoteID:         uuid.New().String(),
		ServiceType:     req.ServiceType,
		CellID:          string(cell),
		BaseFare:        baseFare,
		DistanceFare:    distanceFare,
		TimeFare:        timeFare,
		Subtotal:        subtotal,
		SurgeMultiplier: 1.0,
		SurgeAmount:     0,
		TotalFare:       subtotal,
		Currency:        e.cfg.Currency,
		Compliance: domain.RegulatoryCompliance{
			LTFRBCompliant: true,
			MaxAllowedFare: rule.MaxAllowedFare(subtotal),
		},
		Factors:   domain.NeutralFactors(),
		Degraded:  true,
		CreatedAt: at,
		ExpiresAt: at.Add(e.cfg.QuoteTTL),
	}
}

func degradeReason(stateErr, factorsErr, overridesErr error) string {
	switch {
	case stateErr != nil:
		return "surge state read failed: " + stateErr.Error()
	case factorsErr != nil:
		return "external factor fetch failed: " + factorsErr.Error()
	case overridesErr != nil:
		return "override registry read failed: " + overridesErr.Error()
	}
	return ""
}

func (e *QuoteEngine) recordAudit(q *domain.Quote, req QuoteRequest, cell geo.CellID, start time.Time, clamped bool, degradedReason string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(&domain.QuoteAudit{
		QuoteID:           q.QuoteID,
		ServiceType:       q.ServiceType,
		CellID:            string(cell),
		PickupLat:         req.PickupLat,
		PickupLng:         req.PickupLng,
		DistanceKm:        req.EstimatedDistanceKm,
		DurationMin:       req.EstimatedDurationMin,
		Subtotal:          q.Subtotal,
		SurgeMultiplier:   q.SurgeMultiplier,
		TotalFare:         q.TotalFare,
		RegulatoryClamped: clamped,
		Degraded:          q.Degraded,
		DegradedReason:    degradedReason,
		ProcessingMs:      time.Since(start).Milliseconds(),
		CreatedAt:         time.Now(),
	})
}
