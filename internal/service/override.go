package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fare/internal/domain"
	"fare/internal/geo"
	"fare/internal/repository"
)

const minOverrideReasonLen = 10

// EffectiveByType resolves, for each override type, the single override
// that applies to a pickup point at an instant: the most specific
// geographic scope wins, ties broken by the most recent start time. This
// enforces the at-most-one-effective-override-per-type invariant at read
// time.
func EffectiveByType(overrides []*domain.Override, cell geo.CellID, lat, lng float64, st domain.ServiceType, at time.Time) map[domain.OverrideType]*domain.Override {
	result := make(map[domain.OverrideType]*domain.Override)

	for _, o := range overrides {
		if !o.EffectiveAt(at) || !o.CoversService(st) || !o.Scope.Covers(cell, lat, lng) {
			continue
		}
		cur := result[o.Type]
		if cur == nil {
			result[o.Type] = o
			continue
		}
		curSpec, newSpec := cur.Scope.Specificity(), o.Scope.Specificity()
		if newSpec > curSpec || (newSpec == curSpec && o.StartTime.After(cur.StartTime)) {
			result[o.Type] = o
		}
	}

	return result
}

// OverrideService is the executive control plane over surge pricing.
type OverrideService struct {
	repo     repository.OverrideRepository
	notifier CrisisNotifier
	audit    repository.AuditRepository

	// typeLocks serializes create/revoke per override type so the
	// single-effective-override invariant cannot race; no cross-type
	// locking is needed.
	mu        sync.Mutex
	typeLocks map[domain.OverrideType]*sync.Mutex
}

// NewOverrideService creates a new OverrideService.
func NewOverrideService(repo repository.OverrideRepository, notifier CrisisNotifier, audit repository.AuditRepository) *OverrideService {
	return &OverrideService{
		repo:      repo,
		notifier:  notifier,
		audit:     audit,
		typeLocks: make(map[domain.OverrideType]*sync.Mutex),
	}
}

func (s *OverrideService) lockFor(t domain.OverrideType) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.typeLocks[t]
	if !ok {
		l = &sync.Mutex{}
		s.typeLocks[t] = l
	}
	return l
}

// EffectiveOverrides returns the overrides effective at the instant.
// Implements OverrideSource for the quote engine and surge sweeper.
func (s *OverrideService) EffectiveOverrides(ctx context.Context, at time.Time) ([]*domain.Override, error) {
	return s.repo.GetEffective(ctx, at)
}

// CreateOverrideRequest contains the parameters for creating an override.
type CreateOverrideRequest struct {
	Type         domain.OverrideType
	Scope        domain.GeographicScope
	ServiceTypes []domain.ServiceType
	Parameters   domain.OverrideParameters
	Reason       string
	IssuedBy     domain.Issuer
	StartTime    time.Time
	EndTime      time.Time
}

// CreateOverrideResponse bundles the created override with advisory text.
type CreateOverrideResponse struct {
	Override  *domain.Override
	Warnings  []string
	NextSteps []string
}

// Create validates and persists an operator override. Validation,
// including the approval-level gate, happens before any state is mutated.
// An emergency_control override synchronously notifies the crisis channel
// and lands on the high-priority audit stream before Create returns.
func (s *OverrideService) Create(ctx context.Context, req CreateOverrideRequest) (*CreateOverrideResponse, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	lock := s.lockFor(req.Type)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	start := req.StartTime
	if start.IsZero() {
		start = now
	}

	o := &domain.Override{
		ID:           uuid.New().String(),
		Type:         req.Type,
		Scope:        req.Scope,
		ServiceTypes: req.ServiceTypes,
		Parameters:   req.Parameters,
		Reason:       req.Reason,
		IssuedBy:     req.IssuedBy,
		Status:       domain.OverrideStatusActive,
		StartTime:    start,
		EndTime:      req.EndTime,
		CreatedAt:    now,
	}

	warnings, err := s.overlapWarnings(ctx, o, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	priority := domain.AuditPriorityNormal
	if o.Type == domain.OverrideEmergencyControl {
		priority = domain.AuditPriorityHigh
		// Crisis notification is part of creation, not best-effort.
		if err := s.notifier.NotifyEmergencyOverride(ctx, o); err != nil {
			return nil, fmt.Errorf("emergency override %s created but crisis notification failed: %w", o.ID, err)
		}
	}

	if err := s.audit.RecordOverrideEvent(ctx, &domain.OverrideAudit{
		ID:         uuid.New().String(),
		OverrideID: o.ID,
		Action:     "created",
		Type:       o.Type,
		OperatorID: o.IssuedBy.OperatorID,
		Reason:     o.Reason,
		Priority:   priority,
		CreatedAt:  now,
	}); err != nil {
		if priority == domain.AuditPriorityHigh {
			return nil, fmt.Errorf("emergency override %s created but high-priority audit failed: %w", o.ID, err)
		}
		log.Printf("[OVERRIDE] audit write failed for %s: %v", o.ID, err)
	}

	return &CreateOverrideResponse{
		Override:  o,
		Warnings:  append(warnings, typeWarnings(o)...),
		NextSteps: nextSteps(o),
	}, nil
}

func (s *OverrideService) validateCreate(req CreateOverrideRequest) error {
	if !domain.ValidOverrideType(req.Type) {
		return ErrInvalidOverrideType
	}
	if len(req.Reason) < minOverrideReasonLen {
		return ErrReasonTooShort
	}
	if len(req.ServiceTypes) == 0 {
		return ErrNoServiceTypes
	}
	if err := validateScope(req.Scope); err != nil {
		return err
	}

	policy, ok := domain.PolicyForLevel(req.IssuedBy.ApprovalLevel)
	if !ok {
		return ErrUnknownApprovalLevel
	}
	if !policy.MayIssue(req.Type) {
		return ErrInsufficientApproval
	}

	switch req.Type {
	case domain.OverrideCapSurge:
		if req.Parameters.CapValue == nil || *req.Parameters.CapValue < 1.0 || *req.Parameters.CapValue > 10.0 {
			return ErrCapOutOfRange
		}
	case domain.OverrideFareAdjustment:
		if req.Parameters.AdjustmentPct == nil && req.Parameters.FlatAmount == nil {
			return ErrAdjustmentOutOfRange
		}
		if req.Parameters.AdjustmentPct != nil {
			pct := *req.Parameters.AdjustmentPct
			if pct > policy.MaxAdjustmentPct || pct < -policy.MaxAdjustmentPct {
				return ErrAdjustmentOutOfRange
			}
		}
	case domain.OverrideEmergencyControl:
		if req.Parameters.EmergencyMultiplier == nil || *req.Parameters.EmergencyMultiplier <= 0 {
			return ErrInvalidEmergencyMultiplier
		}
	}

	if !req.EndTime.IsZero() && !req.StartTime.IsZero() && !req.EndTime.After(req.StartTime) {
		return ErrInvalidScope
	}

	return nil
}

func validateScope(s domain.GeographicScope) error {
	switch s.Type {
	case domain.ScopeCity:
		if s.City == "" {
			return ErrInvalidScope
		}
	case domain.ScopeRegion:
		if s.Region == "" {
			return ErrInvalidScope
		}
	case domain.ScopeZone:
		if !geo.CellID(s.CellPrefix).Valid() {
			return ErrInvalidScope
		}
	case domain.ScopePointRadius:
		if !geo.ValidLatLng(s.CenterLat, s.CenterLng) || s.RadiusKm <= 0 || s.RadiusKm > 100 {
			return ErrInvalidScope
		}
	case domain.ScopeRoute:
		if len(s.RouteCells) == 0 {
			return ErrInvalidScope
		}
		for _, rc := range s.RouteCells {
			if !geo.CellID(rc).Valid() {
				return ErrInvalidScope
			}
		}
	default:
		return ErrInvalidScope
	}
	return nil
}

// overlapWarnings flags existing effective overrides of the same type that
// share scope with the new one. Overlaps are legal (precedence resolves
// them at read time) but worth surfacing to the operator.
func (s *OverrideService) overlapWarnings(ctx context.Context, o *domain.Override, now time.Time) ([]string, error) {
	existing, err := s.repo.GetEffective(ctx, now)
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, ex := range existing {
		if ex.Type != o.Type {
			continue
		}
		for _, st := range o.ServiceTypes {
			if ex.CoversService(st) {
				warnings = append(warnings, fmt.Sprintf(
					"overlaps existing %s override %s; the most specific scope wins at quote time", ex.Type, ex.ID))
				break
			}
		}
	}
	return warnings, nil
}

func typeWarnings(o *domain.Override) []string {
	switch o.Type {
	case domain.OverrideDisableSurge:
		return []string{"disabling surge may cause driver shortages in high-demand areas"}
	case domain.OverrideSuspendService:
		return []string{"suspending service rejects all quote requests in scope"}
	case domain.OverrideEmergencyControl:
		return []string{"emergency controls are visible to regulators in the high-priority audit stream"}
	case domain.OverrideFareAdjustment:
		if o.Parameters.AdjustmentPct != nil && *o.Parameters.AdjustmentPct < 0 {
			return []string{"negative adjustments reduce driver earnings and may reduce supply"}
		}
	}
	return nil
}

func nextSteps(o *domain.Override) []string {
	steps := []string{"monitor supply and demand in the affected area"}
	if o.EndTime.IsZero() {
		steps = append(steps, "set an end time or revoke manually once conditions normalize")
	}
	if o.Type == domain.OverrideEmergencyControl {
		steps = append(steps, "confirm crisis-management channel acknowledged the notification")
	}
	return steps
}

// Revoke transitions an active override to revoked. Revoking an already
// revoked override is a no-op error; quotes already issued are unaffected.
func (s *OverrideService) Revoke(ctx context.Context, id, reason string) (*domain.Override, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(o.Type)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; status may have changed.
	o, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch o.Status {
	case domain.OverrideStatusRevoked:
		return nil, ErrOverrideAlreadyRevoked
	case domain.OverrideStatusExpired:
		return nil, ErrOverrideNotActive
	}

	now := time.Now()
	if err := s.repo.Revoke(ctx, id, reason, now); err != nil {
		return nil, err
	}

	o.Status = domain.OverrideStatusRevoked
	o.RevokedAt = now
	o.RevokeReason = reason

	if err := s.audit.RecordOverrideEvent(ctx, &domain.OverrideAudit{
		ID:         uuid.New().String(),
		OverrideID: o.ID,
		Action:     "revoked",
		Type:       o.Type,
		OperatorID: o.IssuedBy.OperatorID,
		Reason:     reason,
		Priority:   domain.AuditPriorityNormal,
		CreatedAt:  now,
	}); err != nil {
		log.Printf("[OVERRIDE] audit write failed for revoke of %s: %v", o.ID, err)
	}

	return o, nil
}

// ExpireDue sweeps active overrides whose end time has passed. Called from
// the surge tick so expiry lags real time by at most one interval; readers
// additionally filter by window, so an unswept override is never applied.
func (s *OverrideService) ExpireDue(ctx context.Context) {
	now := time.Now()
	ids, err := s.repo.MarkExpired(ctx, now)
	if err != nil {
		log.Printf("[OVERRIDE] expiry sweep failed: %v", err)
		return
	}
	for _, id := range ids {
		if err := s.audit.RecordOverrideEvent(ctx, &domain.OverrideAudit{
			ID:         uuid.New().String(),
			OverrideID: id,
			Action:     "expired",
			Priority:   domain.AuditPriorityNormal,
			CreatedAt:  now,
		}); err != nil {
			log.Printf("[OVERRIDE] audit write failed for expiry of %s: %v", id, err)
		}
	}
}

// DashboardSummary is the operator view over the registry.
type DashboardSummary struct {
	ActiveCount   int                         `json:"active_count"`
	CountsByType  map[domain.OverrideType]int `json:"counts_by_type"`
	ExpiringSoon  []*domain.Override          `json:"expiring_soon"`
	Active        []*domain.Override          `json:"active"`
	RecentRevoked []*domain.Override          `json:"recent_revoked"`
}

// Dashboard summarizes current override activity.
func (s *OverrideService) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summary := &DashboardSummary{
		CountsByType: make(map[domain.OverrideType]int),
	}

	for _, o := range all {
		switch {
		case o.EffectiveAt(now):
			summary.ActiveCount++
			summary.CountsByType[o.Type]++
			summary.Active = append(summary.Active, o)
			if !o.EndTime.IsZero() && o.EndTime.Sub(now) < time.Hour {
				summary.ExpiringSoon = append(summary.ExpiringSoon, o)
			}
		case o.Status == domain.OverrideStatusRevoked && now.Sub(o.RevokedAt) < 24*time.Hour:
			summary.RecentRevoked = append(summary.RecentRevoked, o)
		}
	}

	return summary, nil
}
