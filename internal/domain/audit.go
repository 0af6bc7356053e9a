package domain

import "time"

// AuditPriority separates the routine quote trail from the high-priority
// stream emergency overrides are logged to.
type AuditPriority string

const (
	AuditPriorityNormal AuditPriority = "normal"
	AuditPriorityHigh   AuditPriority = "high"
)

// QuoteAudit is the operator-discoverable record of one quote computation.
// Degradations and regulatory clamping surface here, not to the end caller.
type QuoteAudit struct {
	ID                string
	QuoteID           string
	ServiceType       ServiceType
	CellID            string
	PickupLat         float64
	PickupLng         float64
	DistanceKm        float64
	DurationMin       float64
	Subtotal          float64
	SurgeMultiplier   float64
	TotalFare         float64
	RegulatoryClamped bool
	Degraded          bool
	DegradedReason    string
	ProcessingMs      int64
	CreatedAt         time.Time
}

// OverrideAudit records override lifecycle events (create, revoke, expire).
type OverrideAudit struct {
	ID         string
	OverrideID string
	Action     string // created | revoked | expired
	Type       OverrideType
	OperatorID string
	Reason     string
	Priority   AuditPriority
	CreatedAt  time.Time
}
