package domain

import (
	"math"
	"time"
)

// ServiceType identifies a regulated ride service class, e.g. "tnvs_standard".
type ServiceType string

// AllServiceTypes is the wildcard used in override scopes.
const AllServiceTypes ServiceType = "all"

// PricingRule is the regulator-approved fare schedule for one service type.
// Rules are immutable once published; a new rule supersedes an old one.
type PricingRule struct {
	ID                string
	ServiceType       ServiceType
	BaseFare          float64 // flag-down amount
	PerKmRate         float64
	PerMinRate        float64
	SurgeCap          float64 // operational surge ceiling, >= 1.0
	MaxFareMultiplier float64 // regulator's hard fare ceiling as a multiple of the subtotal
	RegulatorApproved bool
	GeographicScope   string // city/region the rule was approved for
	EffectiveFrom     time.Time
	EffectiveUntil    time.Time // zero means open-ended
}

// EffectiveAt reports whether the rule is in force at the given instant.
func (r *PricingRule) EffectiveAt(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveUntil.IsZero() || at.Before(r.EffectiveUntil)
}

// Subtotal computes the unsurged fare for a trip estimate.
func (r *PricingRule) Subtotal(distanceKm, durationMin float64) float64 {
	return r.BaseFare + distanceKm*r.PerKmRate + durationMin*r.PerMinRate
}

// MaxAllowedFare is the regulator's absolute fare ceiling for a trip with
// the given subtotal. Quotes are clamped to this, never rejected over it.
func (r *PricingRule) MaxAllowedFare(subtotal float64) float64 {
	m := r.MaxFareMultiplier
	if m < 1.0 {
		m = 1.0
	}
	return Round2(subtotal * m)
}

// RegulatoryCompliance records the LTFRB fare-ceiling check on a quote.
type RegulatoryCompliance struct {
	LTFRBCompliant bool     `json:"ltfrb_compliant"`
	Corrected      bool     `json:"corrected"`
	MaxAllowedFare float64  `json:"max_allowed_fare"`
	Violations     []string `json:"violations,omitempty"`
}

// Quote is a time-limited, immutable priced offer for a specific trip.
// It is never persisted beyond its expiry.
type Quote struct {
	QuoteID         string               `json:"quote_id"`
	ServiceType     ServiceType          `json:"service_type"`
	CellID          string               `json:"cell_id"`
	BaseFare        float64              `json:"base_fare"`
	DistanceFare    float64              `json:"distance_fare"`
	TimeFare        float64              `json:"time_fare"`
	Subtotal        float64              `json:"subtotal"`
	SurgeMultiplier float64              `json:"surge_multiplier"`
	SurgeAmount     float64              `json:"surge_amount"`
	TotalFare       float64              `json:"total_fare"`
	Currency        string               `json:"currency"`
	Compliance      RegulatoryCompliance `json:"regulatory_compliance"`
	Factors         Factors              `json:"factors"`
	Degraded        bool                 `json:"degraded"`
	CreatedAt       time.Time            `json:"created_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
}

// Round2 rounds a monetary or multiplier value to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
