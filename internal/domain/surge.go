package domain

import "time"

// Factors are the multiplicative impact factors composed into the surge
// multiplier. Each is >= 0, with 1.0 meaning no impact.
type Factors struct {
	Weather   float64 `json:"weather"`
	Traffic   float64 `json:"traffic"`
	Event     float64 `json:"event"`
	POI       float64 `json:"poi"`
	TimeOfDay float64 `json:"time_of_day"`
}

// NeutralFactors returns factors with no impact on the multiplier.
func NeutralFactors() Factors {
	return Factors{Weather: 1.0, Traffic: 1.0, Event: 1.0, POI: 1.0, TimeOfDay: 1.0}
}

// Product composes all factors multiplicatively.
func (f Factors) Product() float64 {
	return f.Weather * f.Traffic * f.Event * f.POI * f.TimeOfDay
}

// Counts is a supply/demand snapshot for one (cell, service type).
type Counts struct {
	Supply      int `json:"supply"`
	Demand      int `json:"demand"`
	ActiveTrips int `json:"active_trips"`
}

// SurgeState is the per-(cell, service type) surge record. Each write is a
// complete self-consistent snapshot; last write wins.
type SurgeState struct {
	CellID            string      `json:"cell_id"`
	ServiceType       ServiceType `json:"service_type"`
	CurrentMultiplier float64     `json:"current_multiplier"`
	SupplyCount       int         `json:"supply_count"`
	DemandCount       int         `json:"demand_count"`
	SupplyDemandRatio float64     `json:"supply_demand_ratio"`
	ActiveTripCount   int         `json:"active_trip_count"`
	Factors           Factors     `json:"factors"`
	ComputedAt        time.Time   `json:"computed_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
	Version           int64       `json:"version"`
}

// Expired reports whether the record is stale at the given instant.
func (s *SurgeState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EffectiveMultiplier returns the multiplier a consumer must use: the
// stored value while fresh, 1.0 (no surge) once expired. Expired records
// degrade rather than serve stale surge.
func (s *SurgeState) EffectiveMultiplier(now time.Time) float64 {
	if s == nil || s.Expired(now) {
		return 1.0
	}
	return s.CurrentMultiplier
}

// ComputeSupplyDemandRatio computes demand pressure with a supply floor of 1
// so empty cells do not divide by zero.
func ComputeSupplyDemandRatio(supply, demand int) float64 {
	if supply < 1 {
		supply = 1
	}
	return float64(demand) / float64(supply)
}

// DemandTierMultiplier buckets a supply/demand ratio into the surge tier.
func DemandTierMultiplier(ratio float64) float64 {
	switch {
	case ratio >= 3.0:
		return 2.5
	case ratio >= 2.0:
		return 2.0
	case ratio >= 1.5:
		return 1.5
	case ratio >= 1.2:
		return 1.2
	default:
		return 1.0
	}
}

// ComposeSurgeMultiplier combines the demand tier with the external factors.
// The quote engine and the surge recomputation loop both call this exact
// function; the two paths must never diverge numerically.
func ComposeSurgeMultiplier(ratio float64, f Factors) float64 {
	return DemandTierMultiplier(ratio) * f.Product()
}

// TimeOfDayFactor derives the time-of-day multiplier from local time.
// Morning and evening rush carry a premium, late night a smaller one.
func TimeOfDayFactor(t time.Time) float64 {
	switch h := t.Hour(); {
	case h >= 7 && h < 9:
		return 1.2
	case h >= 17 && h < 20:
		return 1.3
	case h >= 0 && h < 5:
		return 1.1
	default:
		return 1.0
	}
}
