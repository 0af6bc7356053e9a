package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fare/internal/domain"
	"fare/internal/redis"
	"fare/internal/repository"
)

const (
	maxConcurrentSimulations = 5
	minSimIterations         = 1000
	maxSimIterations         = 100000
	maxSimHorizonDays        = 365
	baselineWindow           = 30 * 24 * time.Hour
	simWorkers               = 4
)

// seasonalFactors is the month-of-year demand multiplier. December peaks
// with holiday travel, the rainy mid-year months dip.
var seasonalFactors = [13]float64{
	0, 1.0, 0.95, 1.0, 1.05, 1.0, 0.90, 0.90, 0.95, 1.0, 1.05, 1.10, 1.15,
}

// fallbackBaseline is used when the audit trail holds too little history
// to aggregate a baseline.
var fallbackBaseline = domain.BaselineStats{
	DailyRevenue: 1_500_000,
	DailyTrips:   12_000,
	ServiceTypeShares: map[domain.ServiceType]float64{
		"standard": 0.55,
		"premium":  0.15,
		"xl":       0.12,
		"moto":     0.18,
	},
}

// SimulationEngine runs Monte Carlo projections of fare structure changes.
// Runs execute in the background; state lives in the run store so results
// survive restarts, while the in-process registry enforces the concurrency
// cap and carries cancellation.
type SimulationEngine struct {
	runs     redis.RunStoreInterface
	baseline repository.AuditRepository

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
	wg     sync.WaitGroup

	// runMu serializes mutation of live run structs. Persistence always
	// works on a snapshot taken under this lock, never the live struct.
	runMu sync.Mutex
}

// NewSimulationEngine creates a new SimulationEngine.
func NewSimulationEngine(runs redis.RunStoreInterface, baseline repository.AuditRepository) *SimulationEngine {
	return &SimulationEngine{
		runs:     runs,
		baseline: baseline,
		active:   make(map[string]context.CancelCauseFunc),
	}
}

// Start validates the request, registers a run and launches it in the
// background. The returned run is in the running state with progress 0.
func (e *SimulationEngine) Start(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationRun, error) {
	if err := validateSimulationRequest(req); err != nil {
		return nil, err
	}

	run := &domain.SimulationRun{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    domain.SimulationRunning,
		CreatedAt: time.Now(),
	}

	// Check the cap and register atomically so two concurrent starts
	// cannot both slip under the limit.
	e.mu.Lock()
	if len(e.active) >= maxConcurrentSimulations {
		e.mu.Unlock()
		return nil, ErrTooManySimulations
	}
	runCtx, cancel := context.WithCancelCause(context.Background())
	e.active[run.ID] = cancel
	e.mu.Unlock()

	if err := e.runs.Save(ctx, run); err != nil {
		e.unregister(run.ID)
		return nil, err
	}

	e.wg.Add(1)
	go e.execute(runCtx, run)

	// The background goroutine owns the live struct from here on.
	snapshot := *run
	return &snapshot, nil
}

func validateSimulationRequest(req domain.SimulationRequest) error {
	if req.TimeHorizonDays < 1 || req.TimeHorizonDays > maxSimHorizonDays {
		return fmt.Errorf("%w: time_horizon_days must be in [1, %d]", ErrSimulationBounds, maxSimHorizonDays)
	}
	if req.Iterations < minSimIterations || req.Iterations > maxSimIterations {
		return fmt.Errorf("%w: iterations must be in [%d, %d]", ErrSimulationBounds, minSimIterations, maxSimIterations)
	}
	switch req.ConfidenceLevel {
	case 0.90, 0.95, 0.99:
	default:
		return fmt.Errorf("%w: confidence_level must be one of 0.90, 0.95, 0.99", ErrSimulationBounds)
	}
	if req.CompetitorResponseProb < 0 || req.CompetitorResponseProb > 1 {
		return fmt.Errorf("%w: competitor_response_probability must be in [0, 1]", ErrSimulationBounds)
	}
	for name, f := range req.ExternalFactors {
		if f <= 0 {
			return fmt.Errorf("%w: external factor %q must be positive", ErrSimulationBounds, name)
		}
	}
	return nil
}

func (e *SimulationEngine) unregister(id string) {
	e.mu.Lock()
	if cancel, ok := e.active[id]; ok {
		cancel(nil)
		delete(e.active, id)
	}
	e.mu.Unlock()
}

// execute drives one run to a terminal state. A panic in the trial math
// fails the run instead of crashing the process.
func (e *SimulationEngine) execute(ctx context.Context, run *domain.SimulationRun) {
	defer e.wg.Done()
	defer e.unregister(run.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SIM] run %s panicked: %v", run.ID, r)
			e.finishFailed(run, fmt.Sprintf("internal error: %v", r))
		}
	}()

	result, err := e.runProjection(ctx, run)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			e.finishFailed(run, cause.Error())
		} else {
			e.finishFailed(run, err.Error())
		}
		return
	}

	e.runMu.Lock()
	run.Status = domain.SimulationCompleted
	run.ProgressPct = 100
	run.Result = result
	run.CompletedAt = time.Now()
	snapshot := *run
	e.runMu.Unlock()
	e.persist(&snapshot)
}

func (e *SimulationEngine) finishFailed(run *domain.SimulationRun, msg string) {
	e.runMu.Lock()
	run.Status = domain.SimulationFailed
	run.Error = msg
	run.CompletedAt = time.Now()
	snapshot := *run
	e.runMu.Unlock()
	e.persist(&snapshot)
}

func (e *SimulationEngine) persist(run *domain.SimulationRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.runs.Save(ctx, run); err != nil {
		log.Printf("[SIM] failed to persist run %s: %v", run.ID, err)
	}
}

func (e *SimulationEngine) setProgress(run *domain.SimulationRun, pct int) {
	e.runMu.Lock()
	// Workers report out of order; progress never goes backwards.
	if pct > run.ProgressPct {
		run.ProgressPct = pct
	}
	snapshot := *run
	e.runMu.Unlock()
	e.persist(&snapshot)
}

func (e *SimulationEngine) loadBaseline(ctx context.Context) domain.BaselineStats {
	stats, err := e.baseline.BaselineStats(ctx, baselineWindow)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[SIM] baseline aggregation failed, using static baseline: %v", err)
		}
		return fallbackBaseline
	}
	return *stats
}

// runProjection performs the Monte Carlo trials and derives the report.
func (e *SimulationEngine) runProjection(ctx context.Context, run *domain.SimulationRun) (*domain.SimulationResult, error) {
	req := run.Request
	baseline := e.loadBaseline(ctx)
	e.setProgress(run, 5)

	priceMult := 1 + req.BaseFareChangePct/100
	// Constant-elasticity demand response to the price change.
	demandMult := 1 + req.Elasticity*req.BaseFareChangePct/100
	if demandMult < 0 {
		demandMult = 0
	}

	stddev := req.DemandVariationStdDev
	if stddev <= 0 {
		stddev = 0.10
	}

	externalMult := 1.0
	for _, f := range req.ExternalFactors {
		externalMult *= f
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	revenues := make([]float64, req.Iterations)
	trips := make([]float64, req.Iterations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(simWorkers)

	chunk := (req.Iterations + simWorkers - 1) / simWorkers
	var progressMu sync.Mutex
	done := 0

	startDate := run.CreatedAt
	for w := 0; w < simWorkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > req.Iterations {
			hi = req.Iterations
		}
		if lo >= hi {
			break
		}
		lo, hi, w := lo, hi, w
		g.Go(func() error {
			// Per-worker generator keyed off the run seed keeps trials
			// reproducible without contending on a shared source.
			rng := rand.New(rand.NewSource(seed + int64(w)))
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					select {
					case <-gctx.Done():
						return context.Cause(gctx)
					default:
					}
				}

				var rev, vol float64
				for day := 0; day < req.TimeHorizonDays; day++ {
					date := startDate.AddDate(0, 0, day)
					daily := demandMult * seasonalFactors[date.Month()]
					daily *= 1 + rng.NormFloat64()*stddev
					if daily < 0 {
						daily = 0
					}
					if rng.Float64() < req.CompetitorResponseProb {
						daily *= 0.95
					}
					daily *= externalMult

					dayTrips := baseline.DailyTrips * daily
					vol += dayTrips
					rev += dayTrips * (baseline.DailyRevenue / baseline.DailyTrips) * priceMult
				}
				revenues[i] = rev
				trips[i] = vol
			}

			progressMu.Lock()
			done++
			pct := 5 + 85*done/simWorkers
			progressMu.Unlock()
			e.setProgress(run, pct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := e.buildResult(req, baseline, revenues, trips, startDate, priceMult, demandMult, externalMult)
	e.setProgress(run, 95)
	return result, nil
}

func (e *SimulationEngine) buildResult(
	req domain.SimulationRequest,
	baseline domain.BaselineStats,
	revenues, trips []float64,
	startDate time.Time,
	priceMult, demandMult, externalMult float64,
) *domain.SimulationResult {
	revStats := summarize(revenues)
	tripStats := summarize(trips)

	byService := make(map[domain.ServiceType]float64, len(baseline.ServiceTypeShares))
	for st, share := range baseline.ServiceTypeShares {
		if len(req.ServiceTypes) > 0 && !containsService(req.ServiceTypes, st) {
			continue
		}
		byService[st] = domain.Round2(tripStats.mean * share)
	}

	// Market share moves with trip volume relative to a static market.
	marketShareChange := (demandMult - 1) * 100 * 0.5

	pct := req.BaseFareChangePct
	customer := domain.CustomerImpact{
		SatisfactionDelta:     domain.Round2(-pct * 0.3),
		ChurnProbabilityDelta: domain.Round2(math.Max(0, pct) * 0.002),
		ProjectedComplaints:   int(math.Max(0, pct) * baseline.DailyTrips * 0.001),
	}

	earnings := domain.Round2(pct * 0.7)
	supplyResponse := "neutral"
	if earnings > 2 {
		supplyResponse = "increase"
	} else if earnings < -2 {
		supplyResponse = "decrease"
	}
	driver := domain.DriverImpact{
		EarningsChangePct: earnings,
		SupplyResponse:    supplyResponse,
	}

	return &domain.SimulationResult{
		Revenue: domain.RevenueProjection{
			Mean:        domain.Round2(revStats.mean),
			Median:      domain.Round2(revStats.median),
			StdDev:      domain.Round2(revStats.stddev),
			Percentiles: revStats.percentiles,
		},
		Trips: domain.TripProjection{
			Mean:          domain.Round2(tripStats.mean),
			Median:        domain.Round2(tripStats.median),
			StdDev:        domain.Round2(tripStats.stddev),
			ByServiceType: byService,
		},
		MarketShareChangePct: domain.Round2(marketShareChange),
		CustomerImpact:       customer,
		DriverImpact:         driver,
		RiskFactors:          assessRisks(req),
		Recommendations:      buildRecommendations(req, revStats.mean, baseline.DailyRevenue*float64(req.TimeHorizonDays)),
		DailyProjections:     dailyProjections(req, baseline, startDate, priceMult, demandMult, externalMult),
	}
}

func containsService(sts []domain.ServiceType, st domain.ServiceType) bool {
	for _, s := range sts {
		if s == st {
			return true
		}
	}
	return false
}

func assessRisks(req domain.SimulationRequest) []domain.RiskFactor {
	var risks []domain.RiskFactor
	abs := math.Abs(req.BaseFareChangePct)
	if abs > 25 {
		risks = append(risks, domain.RiskFactor{
			Category:    "regulatory",
			Severity:    "high",
			Description: "fare changes above 25% typically require regulator pre-approval",
		})
	}
	if req.BaseFareChangePct > 15 {
		risks = append(risks, domain.RiskFactor{
			Category:    "competitive",
			Severity:    "medium",
			Description: "price increases above 15% invite competitor undercutting",
		})
	}
	if abs > 10 {
		risks = append(risks, domain.RiskFactor{
			Category:    "customer_satisfaction",
			Severity:    "medium",
			Description: "double-digit fare changes measurably move satisfaction scores",
		})
	}
	return risks
}

func buildRecommendations(req domain.SimulationRequest, projectedRevenue, baselineRevenue float64) []domain.Recommendation {
	var recs []domain.Recommendation
	priority := 1

	if math.Abs(req.BaseFareChangePct) > 25 {
		recs = append(recs, domain.Recommendation{
			Priority:  priority,
			Action:    "file the proposed fare structure with the regulator before rollout",
			Rationale: "changes of this magnitude require pre-approval",
		})
		priority++
	}
	if math.Abs(req.BaseFareChangePct) > 10 {
		recs = append(recs, domain.Recommendation{
			Priority:  priority,
			Action:    "phase the change in over several weeks",
			Rationale: "gradual rollout softens the demand shock and leaves room to revert",
		})
		priority++
	}
	if projectedRevenue < baselineRevenue {
		recs = append(recs, domain.Recommendation{
			Priority:  priority,
			Action:    "reconsider the change; projected revenue falls below the current baseline",
			Rationale: "the demand response outweighs the per-trip gain",
		})
		priority++
	}
	recs = append(recs, domain.Recommendation{
		Priority:  priority,
		Action:    "monitor daily revenue and trip volume against the projection",
		Rationale: "early divergence from the projected band signals a mis-estimated elasticity",
	})
	return recs
}

// dailyProjections renders the expected (noise-free) path for at most the
// first 30 days.
func dailyProjections(req domain.SimulationRequest, baseline domain.BaselineStats, startDate time.Time, priceMult, demandMult, externalMult float64) []domain.DailyProjection {
	days := req.TimeHorizonDays
	if days > 30 {
		days = 30
	}
	out := make([]domain.DailyProjection, 0, days)
	perTrip := baseline.DailyRevenue / baseline.DailyTrips
	for day := 0; day < days; day++ {
		date := startDate.AddDate(0, 0, day)
		expected := demandMult * seasonalFactors[date.Month()] * externalMult
		// Competitor response contributes its expected value here.
		expected *= 1 - 0.05*req.CompetitorResponseProb
		dayTrips := baseline.DailyTrips * expected
		out = append(out, domain.DailyProjection{
			Day:     day + 1,
			Date:    date,
			Trips:   domain.Round2(dayTrips),
			Revenue: domain.Round2(dayTrips * perTrip * priceMult),
		})
	}
	return out
}

type sampleStats struct {
	mean        float64
	median      float64
	stddev      float64
	percentiles map[string]float64
}

func summarize(samples []float64) sampleStats {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(sorted)))

	return sampleStats{
		mean:   mean,
		median: percentile(sorted, 50),
		stddev: stddev,
		percentiles: map[string]float64{
			"p10": domain.Round2(percentile(sorted, 10)),
			"p25": domain.Round2(percentile(sorted, 25)),
			"p75": domain.Round2(percentile(sorted, 75)),
			"p90": domain.Round2(percentile(sorted, 90)),
			"p95": domain.Round2(percentile(sorted, 95)),
			"p99": domain.Round2(percentile(sorted, 99)),
		},
	}
}

// percentile computes the p-th percentile of a sorted slice with linear
// interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Get returns a simulation run by ID.
func (e *SimulationEngine) Get(ctx context.Context, id string) (*domain.SimulationRun, error) {
	run, err := e.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrSimulationNotFound
	}
	return run, nil
}

// List returns all retained simulation runs, newest first.
func (e *SimulationEngine) List(ctx context.Context) ([]*domain.SimulationRun, error) {
	runs, err := e.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// Cancel stops a running simulation. The run lands in the failed state
// with the cancellation reason; canceling a terminal run is an error.
func (e *SimulationEngine) Cancel(ctx context.Context, id, reason string) error {
	run, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return ErrSimulationNotRunning
	}

	e.mu.Lock()
	cancel, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		// Running in the store but not registered here: a previous
		// instance crashed mid-run. Mark it failed directly.
		run.Status = domain.SimulationFailed
		run.Error = "canceled: " + reason
		run.CompletedAt = time.Now()
		return e.runs.Save(ctx, run)
	}

	cancel(fmt.Errorf("canceled: %s", reason))
	return nil
}

// Close cancels all in-flight runs and waits for them to settle.
func (e *SimulationEngine) Close() {
	e.mu.Lock()
	for _, cancel := range e.active {
		cancel(errors.New("canceled: server shutting down"))
	}
	e.mu.Unlock()
	e.wg.Wait()
}
