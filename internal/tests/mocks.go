package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fare/internal/domain"
	"fare/internal/geo"
	"fare/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RULE REPOSITORY
// ──────────────────────────────────────────────

// MockRuleRepository is a mock implementation of RuleRepository.
type MockRuleRepository struct {
	mu    sync.RWMutex
	rules map[domain.ServiceType]*domain.PricingRule

	// Counters for verification
	GetRuleCallCount int32

	// Error injection
	GetRuleError error
}

// NewMockRuleRepository creates a new mock rule repository.
func NewMockRuleRepository() *MockRuleRepository {
	return &MockRuleRepository{
		rules: make(map[domain.ServiceType]*domain.PricingRule),
	}
}

// AddRule adds a pricing rule to the mock repository.
func (m *MockRuleRepository) AddRule(rule *domain.PricingRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ServiceType] = rule
}

func (m *MockRuleRepository) GetRule(ctx context.Context, st domain.ServiceType, at time.Time) (*domain.PricingRule, error) {
	atomic.AddInt32(&m.GetRuleCallCount, 1)
	if m.GetRuleError != nil {
		return nil, m.GetRuleError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[st]
	if !ok || !rule.EffectiveAt(at) {
		return nil, repository.ErrNotFound
	}
	copy := *rule
	return &copy, nil
}

func (m *MockRuleRepository) ServiceTypes(ctx context.Context, at time.Time) ([]domain.ServiceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ServiceType
	for st, rule := range m.rules {
		if rule.EffectiveAt(at) {
			out = append(out, st)
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK OVERRIDE REPOSITORY
// ──────────────────────────────────────────────

// MockOverrideRepository is a mock implementation of OverrideRepository.
type MockOverrideRepository struct {
	mu        sync.RWMutex
	overrides map[string]*domain.Override

	// Counters for verification
	CreateCallCount int32
	RevokeCallCount int32

	// Error injection
	CreateError       error
	GetEffectiveError error
}

// NewMockOverrideRepository creates a new mock override repository.
func NewMockOverrideRepository() *MockOverrideRepository {
	return &MockOverrideRepository{
		overrides: make(map[string]*domain.Override),
	}
}

// AddOverride adds an override to the mock repository.
func (m *MockOverrideRepository) AddOverride(o *domain.Override) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.ID] = o
}

func (m *MockOverrideRepository) Create(ctx context.Context, o *domain.Override) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *o
	m.overrides[o.ID] = &copy
	return nil
}

func (m *MockOverrideRepository) GetByID(ctx context.Context, id string) (*domain.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.overrides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (m *MockOverrideRepository) GetEffective(ctx context.Context, at time.Time) ([]*domain.Override, error) {
	if m.GetEffectiveError != nil {
		return nil, m.GetEffectiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Override
	for _, o := range m.overrides {
		if o.EffectiveAt(at) {
			copy := *o
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *MockOverrideRepository) GetAll(ctx context.Context) ([]*domain.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Override
	for _, o := range m.overrides {
		copy := *o
		out = append(out, &copy)
	}
	return out, nil
}

func (m *MockOverrideRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	atomic.AddInt32(&m.RevokeCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[id]
	if !ok || o.Status != domain.OverrideStatusActive {
		return repository.ErrNotFound
	}
	o.Status = domain.OverrideStatusRevoked
	o.RevokedAt = at
	o.RevokeReason = reason
	return nil
}

func (m *MockOverrideRepository) MarkExpired(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, o := range m.overrides {
		if o.Status == domain.OverrideStatusActive && !o.EndTime.IsZero() && !now.Before(o.EndTime) {
			o.Status = domain.OverrideStatusExpired
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// ──────────────────────────────────────────────
// MOCK SURGE STATE STORE
// ──────────────────────────────────────────────

// MockSurgeStore is an in-memory mock of the surge state store.
type MockSurgeStore struct {
	mu     sync.RWMutex
	states map[string]*domain.SurgeState

	// Counters for verification
	GetCallCount int32
	PutCallCount int32
	CASCallCount int32

	// Error injection
	GetError error
	PutError error
}

// NewMockSurgeStore creates a new mock surge store.
func NewMockSurgeStore() *MockSurgeStore {
	return &MockSurgeStore{
		states: make(map[string]*domain.SurgeState),
	}
}

func surgeKey(cell geo.CellID, st domain.ServiceType) string {
	return string(cell) + ":" + string(st)
}

// SetState seeds the store with a surge record.
func (m *MockSurgeStore) SetState(state *domain.SurgeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[surgeKey(geo.CellID(state.CellID), state.ServiceType)] = state
}

func (m *MockSurgeStore) Get(ctx context.Context, cell geo.CellID, st domain.ServiceType) (*domain.SurgeState, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[surgeKey(cell, st)]
	if !ok {
		return nil, nil
	}
	copy := *state
	return &copy, nil
}

func (m *MockSurgeStore) Put(ctx context.Context, state *domain.SurgeState) error {
	atomic.AddInt32(&m.PutCallCount, 1)
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *state
	m.states[surgeKey(geo.CellID(state.CellID), state.ServiceType)] = &copy
	return nil
}

func (m *MockSurgeStore) CompareAndSwap(ctx context.Context, state *domain.SurgeState, expectedVersion int64) (bool, error) {
	atomic.AddInt32(&m.CASCallCount, 1)
	if m.PutError != nil {
		return false, m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := surgeKey(geo.CellID(state.CellID), state.ServiceType)
	cur, ok := m.states[key]
	var curVersion int64
	if ok {
		curVersion = cur.Version
	}
	if curVersion != expectedVersion {
		return false, nil
	}
	copy := *state
	m.states[key] = &copy
	return true, nil
}

func (m *MockSurgeStore) List(ctx context.Context) ([]*domain.SurgeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.SurgeState
	for _, s := range m.states {
		copy := *s
		out = append(out, &copy)
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK ACTIVITY STORE
// ──────────────────────────────────────────────

// MockActivityStore is an in-memory mock of the activity store.
type MockActivityStore struct {
	mu     sync.RWMutex
	counts map[string]domain.Counts
	active []geo.CellID

	// Error injection
	CountsError error
}

// NewMockActivityStore creates a new mock activity store.
func NewMockActivityStore() *MockActivityStore {
	return &MockActivityStore{
		counts: make(map[string]domain.Counts),
	}
}

// SetCounts seeds a cell's supply/demand snapshot and marks it active.
func (m *MockActivityStore) SetCounts(cell geo.CellID, st domain.ServiceType, c domain.Counts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[surgeKey(cell, st)] = c
	for _, a := range m.active {
		if a == cell {
			return
		}
	}
	m.active = append(m.active, cell)
}

func (m *MockActivityStore) UpdateDriverLocation(ctx context.Context, driverID string, st domain.ServiceType, lat, lng float64) error {
	return nil
}

func (m *MockActivityStore) RemoveDriverLocation(ctx context.Context, driverID string, st domain.ServiceType) error {
	return nil
}

func (m *MockActivityStore) RecordDemand(ctx context.Context, cell geo.CellID, st domain.ServiceType) error {
	return nil
}

func (m *MockActivityStore) SetActiveTrips(ctx context.Context, cell geo.CellID, st domain.ServiceType, count int) error {
	return nil
}

func (m *MockActivityStore) Counts(ctx context.Context, cell geo.CellID, st domain.ServiceType) (domain.Counts, error) {
	if m.CountsError != nil {
		return domain.Counts{}, m.CountsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[surgeKey(cell, st)], nil
}

func (m *MockActivityStore) ActiveCells(ctx context.Context, window time.Duration) ([]geo.CellID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]geo.CellID, len(m.active))
	copy(out, m.active)
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory mock of the sweep lock.
type MockLockStore struct {
	mu   sync.Mutex
	held bool

	// AcquireResult forces the acquire outcome when set to false.
	AcquireResult bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{AcquireResult: true}
}

func (m *MockLockStore) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.AcquireResult || m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

func (m *MockLockStore) ReleaseSweepLock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	return nil
}

// ──────────────────────────────────────────────
// MOCK RUN STORE
// ──────────────────────────────────────────────

// MockRunStore is an in-memory mock of the simulation run store.
type MockRunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.SimulationRun

	// Error injection
	SaveError error
}

// NewMockRunStore creates a new mock run store.
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{
		runs: make(map[string]*domain.SimulationRun),
	}
}

func (m *MockRunStore) Save(ctx context.Context, run *domain.SimulationRun) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *run
	m.runs[run.ID] = &copy
	return nil
}

func (m *MockRunStore) Get(ctx context.Context, id string) (*domain.SimulationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	copy := *run
	return &copy, nil
}

func (m *MockRunStore) List(ctx context.Context) ([]*domain.SimulationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.SimulationRun
	for _, run := range m.runs {
		copy := *run
		out = append(out, &copy)
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu             sync.Mutex
	QuoteAudits    []*domain.QuoteAudit
	OverrideAudits []*domain.OverrideAudit

	// Baseline returned by BaselineStats; nil falls through to ErrNotFound.
	Baseline *domain.BaselineStats

	// Error injection
	RecordOverrideError error
}

// NewMockAuditRepository creates a new mock audit repository.
func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) RecordQuote(ctx context.Context, a *domain.QuoteAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteAudits = append(m.QuoteAudits, a)
	return nil
}

func (m *MockAuditRepository) RecordOverrideEvent(ctx context.Context, a *domain.OverrideAudit) error {
	if m.RecordOverrideError != nil {
		return m.RecordOverrideError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OverrideAudits = append(m.OverrideAudits, a)
	return nil
}

func (m *MockAuditRepository) BaselineStats(ctx context.Context, window time.Duration) (*domain.BaselineStats, error) {
	if m.Baseline == nil {
		return nil, repository.ErrNotFound
	}
	copy := *m.Baseline
	return &copy, nil
}

// OverrideAuditActions returns the recorded actions in order.
func (m *MockAuditRepository) OverrideAuditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.OverrideAudits))
	for _, a := range m.OverrideAudits {
		out = append(out, a.Action)
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK AUDIT SINK
// ──────────────────────────────────────────────

// MockAuditSink records quote audits synchronously for assertion.
type MockAuditSink struct {
	mu     sync.Mutex
	Events []*domain.QuoteAudit
}

// NewMockAuditSink creates a new mock audit sink.
func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

func (m *MockAuditSink) Record(event *domain.QuoteAudit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// Last returns the most recently recorded event, or nil.
func (m *MockAuditSink) Last() *domain.QuoteAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Events) == 0 {
		return nil
	}
	return m.Events[len(m.Events)-1]
}

// ──────────────────────────────────────────────
// MOCK CRISIS NOTIFIER
// ──────────────────────────────────────────────

// MockCrisisNotifier records emergency notifications.
type MockCrisisNotifier struct {
	mu       sync.Mutex
	Notified []*domain.Override

	// Error injection
	NotifyError error
}

// NewMockCrisisNotifier creates a new mock crisis notifier.
func NewMockCrisisNotifier() *MockCrisisNotifier {
	return &MockCrisisNotifier{}
}

func (m *MockCrisisNotifier) NotifyEmergencyOverride(ctx context.Context, o *domain.Override) error {
	if m.NotifyError != nil {
		return m.NotifyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, o)
	return nil
}

// NotifiedCount returns how many notifications were sent.
func (m *MockCrisisNotifier) NotifiedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notified)
}

// ──────────────────────────────────────────────
// STATIC OVERRIDE SOURCE
// ──────────────────────────────────────────────

// StaticOverrideSource serves a fixed override list.
type StaticOverrideSource struct {
	Overrides []*domain.Override

	// Error injection
	Err error
}

func (s *StaticOverrideSource) EffectiveOverrides(ctx context.Context, at time.Time) ([]*domain.Override, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*domain.Override
	for _, o := range s.Overrides {
		if o.EffectiveAt(at) {
			out = append(out, o)
		}
	}
	return out, nil
}
