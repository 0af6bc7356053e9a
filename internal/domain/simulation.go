package domain

import "time"

// SimulationStatus is the lifecycle state of a simulation run. A run
// transitions running -> completed|failed exactly once.
type SimulationStatus string

const (
	SimulationRunning   SimulationStatus = "running"
	SimulationCompleted SimulationStatus = "completed"
	SimulationFailed    SimulationStatus = "failed"
)

// SimulationRequest is the validated input of a pricing-change projection.
type SimulationRequest struct {
	BaseFareChangePct      float64            `json:"base_fare_change_pct"`
	Elasticity             float64            `json:"elasticity"` // % demand change per % price change, typically negative
	TimeHorizonDays        int                `json:"time_horizon_days"`
	Iterations             int                `json:"iterations"`
	ConfidenceLevel        float64            `json:"confidence_level"`
	CompetitorResponseProb float64            `json:"competitor_response_probability"`
	ServiceTypes           []ServiceType      `json:"service_types,omitempty"`
	ExternalFactors        map[string]float64 `json:"external_factors,omitempty"`
	DemandVariationStdDev  float64            `json:"demand_variation_std_dev,omitempty"`
	Seed                   int64              `json:"seed,omitempty"` // 0 means time-seeded
}

// RevenueProjection aggregates the per-trial revenue samples.
type RevenueProjection struct {
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	StdDev      float64            `json:"std_dev"`
	Percentiles map[string]float64 `json:"percentiles"` // p10,p25,p75,p90,p95,p99
}

// TripProjection aggregates the per-trial trip-volume samples.
type TripProjection struct {
	Mean          float64                 `json:"mean"`
	Median        float64                 `json:"median"`
	StdDev        float64                 `json:"std_dev"`
	ByServiceType map[ServiceType]float64 `json:"by_service_type"`
}

// CustomerImpact holds the customer-side signals, all monotonic in the
// magnitude of the price change.
type CustomerImpact struct {
	SatisfactionDelta     float64 `json:"satisfaction_delta"`
	ChurnProbabilityDelta float64 `json:"churn_probability_delta"`
	ProjectedComplaints   int     `json:"projected_complaints"`
}

// DriverImpact holds the supply-side signals.
type DriverImpact struct {
	EarningsChangePct float64 `json:"earnings_change_pct"`
	SupplyResponse    string  `json:"supply_response"` // increase | decrease | neutral
}

// RiskFactor flags a qualitative risk of the proposed change.
type RiskFactor struct {
	Category    string `json:"category"` // regulatory | competitive | customer_satisfaction
	Severity    string `json:"severity"` // high | medium
	Description string `json:"description"`
}

// Recommendation is one ranked advisory action.
type Recommendation struct {
	Priority  int    `json:"priority"` // 1 is most urgent
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// DailyProjection is one day of the short-horizon projection.
type DailyProjection struct {
	Day     int       `json:"day"`
	Date    time.Time `json:"date"`
	Revenue float64   `json:"revenue"`
	Trips   float64   `json:"trips"`
}

// SimulationResult is populated only when a run completes.
type SimulationResult struct {
	Revenue              RevenueProjection `json:"revenue"`
	Trips                TripProjection    `json:"trips"`
	MarketShareChangePct float64           `json:"market_share_change_pct"`
	CustomerImpact       CustomerImpact    `json:"customer_impact"`
	DriverImpact         DriverImpact      `json:"driver_impact"`
	RiskFactors          []RiskFactor      `json:"risk_factors"`
	Recommendations      []Recommendation  `json:"recommendations"`
	DailyProjections     []DailyProjection `json:"daily_projections"`
}

// SimulationRun tracks one projection from request to terminal state.
type SimulationRun struct {
	ID          string            `json:"id"`
	Request     SimulationRequest `json:"request"`
	Status      SimulationStatus  `json:"status"`
	ProgressPct int               `json:"progress_pct"`
	Result      *SimulationResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// Terminal reports whether the run has reached a final state.
func (r *SimulationRun) Terminal() bool {
	return r.Status == SimulationCompleted || r.Status == SimulationFailed
}

// BaselineStats is the historical baseline a simulation perturbs.
type BaselineStats struct {
	DailyRevenue      float64                 `json:"daily_revenue"`
	DailyTrips        float64                 `json:"daily_trips"`
	ServiceTypeShares map[ServiceType]float64 `json:"service_type_shares"` // fractions summing to 1
}
