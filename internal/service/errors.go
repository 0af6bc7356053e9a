package service

import "errors"

var (
	// ErrUnknownServiceType is returned when no pricing rule exists for the
	// requested service type. There is no safe default fare, so this is the
	// one condition that aborts a quote instead of degrading it.
	ErrUnknownServiceType = errors.New("unknown service type")

	// ErrInvalidCoordinates is returned when pickup or dropoff coordinates
	// are outside valid latitude/longitude ranges.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrInvalidDistance is returned when the estimated distance is negative.
	ErrInvalidDistance = errors.New("invalid estimated distance")

	// ErrInvalidDuration is returned when the estimated duration is negative.
	ErrInvalidDuration = errors.New("invalid estimated duration")

	// ErrServiceSuspended is returned when an active suspend_service
	// override covers the pickup area.
	ErrServiceSuspended = errors.New("service suspended in this area")

	// ErrInvalidOverrideType is returned for an unknown override type.
	ErrInvalidOverrideType = errors.New("invalid override type")

	// ErrReasonTooShort is returned when the override reason is under the
	// minimum length.
	ErrReasonTooShort = errors.New("override reason too short")

	// ErrInvalidScope is returned for a malformed geographic scope.
	ErrInvalidScope = errors.New("invalid geographic scope")

	// ErrNoServiceTypes is returned when an override names no service types.
	ErrNoServiceTypes = errors.New("override must name at least one service type")

	// ErrCapOutOfRange is returned when a cap_surge cap is outside [1.0, 10.0].
	ErrCapOutOfRange = errors.New("surge cap out of range")

	// ErrAdjustmentOutOfRange is returned when a fare adjustment exceeds
	// what the issuer's approval level allows.
	ErrAdjustmentOutOfRange = errors.New("fare adjustment exceeds approval level limit")

	// ErrInvalidEmergencyMultiplier is returned when an emergency_control
	// override carries no usable multiplier.
	ErrInvalidEmergencyMultiplier = errors.New("invalid emergency multiplier")

	// ErrInsufficientApproval is returned when the issuer's approval level
	// may not create the requested override type.
	ErrInsufficientApproval = errors.New("approval level may not issue this override type")

	// ErrUnknownApprovalLevel is returned for approval levels outside 1-4.
	ErrUnknownApprovalLevel = errors.New("unknown approval level")

	// ErrOverrideNotActive is returned when revoking an override that is
	// not currently active.
	ErrOverrideNotActive = errors.New("override not active")

	// ErrOverrideAlreadyRevoked is returned when revoking an override
	// twice; the second revoke is a no-op error, not a state change.
	ErrOverrideAlreadyRevoked = errors.New("override already revoked")

	// ErrSimulationBounds is returned when simulation parameters violate
	// their documented bounds.
	ErrSimulationBounds = errors.New("simulation parameters out of bounds")

	// ErrTooManySimulations is returned when the global concurrent-run cap
	// is reached; the request is rejected, not queued.
	ErrTooManySimulations = errors.New("too many concurrent simulations, try later")

	// ErrSimulationNotFound is returned for an unknown or garbage-collected
	// simulation run.
	ErrSimulationNotFound = errors.New("simulation run not found")

	// ErrSimulationNotRunning is returned when cancelling a run already in
	// a terminal state.
	ErrSimulationNotRunning = errors.New("simulation run not running")
)
