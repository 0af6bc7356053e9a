package domain

import (
	"time"

	"fare/internal/geo"
)

// OverrideType classifies what an operator override does to pricing.
type OverrideType string

const (
	OverrideDisableSurge     OverrideType = "disable_surge"
	OverrideCapSurge         OverrideType = "cap_surge"
	OverrideFareAdjustment   OverrideType = "fare_adjustment"
	OverrideSuspendService   OverrideType = "suspend_service"
	OverrideEmergencyControl OverrideType = "emergency_control"
)

// ValidOverrideType reports whether t is a known override type.
func ValidOverrideType(t OverrideType) bool {
	switch t {
	case OverrideDisableSurge, OverrideCapSurge, OverrideFareAdjustment,
		OverrideSuspendService, OverrideEmergencyControl:
		return true
	}
	return false
}

// OverrideStatus is the lifecycle state of an override. Overrides are never
// hard-deleted; revoked and expired records stay for audit.
type OverrideStatus string

const (
	OverrideStatusActive  OverrideStatus = "active"
	OverrideStatusExpired OverrideStatus = "expired"
	OverrideStatusRevoked OverrideStatus = "revoked"
)

// ScopeType is the kind of geography an override covers.
type ScopeType string

const (
	ScopeCity        ScopeType = "city"
	ScopeRegion      ScopeType = "region"
	ScopeZone        ScopeType = "zone"
	ScopePointRadius ScopeType = "point_radius"
	ScopeRoute       ScopeType = "route"
)

// GeographicScope describes where an override applies. Exactly the fields
// relevant to its type are populated.
type GeographicScope struct {
	Type       ScopeType `json:"type"`
	City       string    `json:"city,omitempty"`
	Region     string    `json:"region,omitempty"`
	CellPrefix string    `json:"cell_prefix,omitempty"` // zone scope: grid-cell prefix
	CenterLat  float64   `json:"center_lat,omitempty"`
	CenterLng  float64   `json:"center_lng,omitempty"`
	RadiusKm   float64   `json:"radius_km,omitempty"`
	RouteCells []string  `json:"route_cells,omitempty"`
}

// Specificity ranks scopes for precedence; a higher value wins over a lower
// one when several overrides of the same type match the same point.
func (s GeographicScope) Specificity() int {
	switch s.Type {
	case ScopePointRadius:
		return 5
	case ScopeRoute:
		return 4
	case ScopeZone:
		// Longer prefixes are smaller zones.
		return 3 + len(s.CellPrefix)
	case ScopeCity:
		return 2
	case ScopeRegion:
		return 1
	}
	return 0
}

// Covers reports whether a pickup point (cell plus exact coordinates) falls
// inside the scope. City and region scopes match the whole deployment area;
// the registry validates their names against the deployment at create time.
func (s GeographicScope) Covers(cell geo.CellID, lat, lng float64) bool {
	switch s.Type {
	case ScopeCity, ScopeRegion:
		return true
	case ScopeZone:
		return geo.CellID(s.CellPrefix).Contains(cell)
	case ScopePointRadius:
		return geo.HaversineKm(s.CenterLat, s.CenterLng, lat, lng) <= s.RadiusKm
	case ScopeRoute:
		for _, rc := range s.RouteCells {
			if geo.CellID(rc).Contains(cell) {
				return true
			}
		}
	}
	return false
}

// OverrideParameters carries the type-specific payload of an override.
type OverrideParameters struct {
	AdjustmentPct       *float64 `json:"adjustment_pct,omitempty"`       // fare_adjustment: percentage, signed
	FlatAmount          *float64 `json:"flat_amount,omitempty"`          // fare_adjustment: flat amount, signed
	CapValue            *float64 `json:"cap_value,omitempty"`            // cap_surge: replacement surge cap
	EmergencyMultiplier *float64 `json:"emergency_multiplier,omitempty"` // emergency_control: post-clamp multiplier
	SuspensionReason    string   `json:"suspension_reason,omitempty"`    // suspend_service
}

// Issuer identifies the operator who created an override.
type Issuer struct {
	OperatorID    string `json:"operator_id"`
	ApprovalLevel int    `json:"approval_level"`
}

// Override is an operator-issued, time-bounded, geographically-scoped rule
// that supersedes the default surge computation.
type Override struct {
	ID           string             `json:"id"`
	Type         OverrideType       `json:"type"`
	Scope        GeographicScope    `json:"geographic_scope"`
	ServiceTypes []ServiceType      `json:"service_types"`
	Parameters   OverrideParameters `json:"parameters"`
	Reason       string             `json:"reason"`
	IssuedBy     Issuer             `json:"issued_by"`
	Status       OverrideStatus     `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time,omitempty"` // zero means open-ended
	CreatedAt    time.Time          `json:"created_at"`
	RevokedAt    time.Time          `json:"revoked_at,omitempty"`
	RevokeReason string             `json:"revoke_reason,omitempty"`
}

// EffectiveAt reports whether the override applies at the given instant.
// An active override whose end time has passed counts as expired even if
// the stored status has not been swept yet.
func (o *Override) EffectiveAt(at time.Time) bool {
	if o.Status != OverrideStatusActive {
		return false
	}
	if at.Before(o.StartTime) {
		return false
	}
	return o.EndTime.IsZero() || at.Before(o.EndTime)
}

// CoversService reports whether the override applies to a service type,
// honoring the "all" wildcard.
func (o *Override) CoversService(st ServiceType) bool {
	for _, s := range o.ServiceTypes {
		if s == AllServiceTypes || s == st {
			return true
		}
	}
	return false
}

// ApprovalPolicy gates what each operator approval level may issue.
type ApprovalPolicy struct {
	MaxAdjustmentPct float64
	AllowedTypes     []OverrideType
}

// approvalPolicies is the server-side permission model; caller-supplied
// levels are validated against it and never trusted beyond lookup.
var approvalPolicies = map[int]ApprovalPolicy{
	1: {MaxAdjustmentPct: 5, AllowedTypes: []OverrideType{OverrideFareAdjustment}},
	2: {MaxAdjustmentPct: 15, AllowedTypes: []OverrideType{OverrideFareAdjustment, OverrideCapSurge, OverrideDisableSurge}},
	3: {MaxAdjustmentPct: 30, AllowedTypes: []OverrideType{OverrideFareAdjustment, OverrideCapSurge, OverrideDisableSurge, OverrideSuspendService, OverrideEmergencyControl}},
	4: {MaxAdjustmentPct: 50, AllowedTypes: []OverrideType{OverrideFareAdjustment, OverrideCapSurge, OverrideDisableSurge, OverrideSuspendService, OverrideEmergencyControl}},
}

// PolicyForLevel returns the approval policy for an operator level.
func PolicyForLevel(level int) (ApprovalPolicy, bool) {
	p, ok := approvalPolicies[level]
	return p, ok
}

// MayIssue reports whether the approval level is allowed to create
// overrides of the given type.
func (p ApprovalPolicy) MayIssue(t OverrideType) bool {
	for _, allowed := range p.AllowedTypes {
		if allowed == t {
			return true
		}
	}
	return false
}
