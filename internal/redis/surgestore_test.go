package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fare/internal/domain"
	"fare/internal/geo"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func testState(version int64) *domain.SurgeState {
	now := time.Now()
	return &domain.SurgeState{
		CellID:            "012301230123",
		ServiceType:       "standard",
		CurrentMultiplier: 1.5,
		SupplyCount:       10,
		DemandCount:       17,
		SupplyDemandRatio: 1.7,
		Factors:           domain.NeutralFactors(),
		ComputedAt:        now,
		ExpiresAt:         now.Add(2 * time.Minute),
		Version:           version,
	}
}

func TestSurgeStateStore_PutGet(t *testing.T) {
	t.Parallel()

	store := NewSurgeStateStore(newTestClient(t))
	ctx := context.Background()

	state := testState(1)
	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, geo.CellID(state.CellID), state.ServiceType)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.CurrentMultiplier, got.CurrentMultiplier)
	assert.Equal(t, state.SupplyDemandRatio, got.SupplyDemandRatio)
	assert.Equal(t, state.Version, got.Version)
}

func TestSurgeStateStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := NewSurgeStateStore(newTestClient(t))

	got, err := store.Get(context.Background(), "012301230123", "standard")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSurgeStateStore_CompareAndSwap(t *testing.T) {
	t.Parallel()

	store := NewSurgeStateStore(newTestClient(t))
	ctx := context.Background()

	// First write against a missing key matches expected version 0.
	first := testState(1)
	ok, err := store.CompareAndSwap(ctx, first, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// Next write must carry the stored version.
	second := testState(2)
	ok, err = store.CompareAndSwap(ctx, second, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer loses.
	stale := testState(2)
	ok, err = store.CompareAndSwap(ctx, stale, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, geo.CellID(first.CellID), first.ServiceType)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
}

func TestSurgeStateStore_List(t *testing.T) {
	t.Parallel()

	store := NewSurgeStateStore(newTestClient(t))
	ctx := context.Background()

	a := testState(1)
	b := testState(1)
	b.CellID = "321032103210"
	require.NoError(t, store.Put(ctx, a))
	require.NoError(t, store.Put(ctx, b))

	states, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestSurgeStateStore_KeyOutlivesLogicalExpiry(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewSurgeStateStore(client)
	ctx := context.Background()

	state := testState(1)
	require.NoError(t, store.Put(ctx, state))

	// Just past the logical expiry the record is still readable, so
	// consumers can observe it as expired rather than missing.
	mr.FastForward(2*time.Minute + time.Second)

	got, err := store.Get(ctx, geo.CellID(state.CellID), state.ServiceType)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Expired(time.Now().Add(2*time.Minute+time.Second)))

	// Past the grace window the key is gone.
	mr.FastForward(10 * time.Minute)
	got, err = store.Get(ctx, geo.CellID(state.CellID), state.ServiceType)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunStore_SaveGetList(t *testing.T) {
	t.Parallel()

	store := NewRunStore(newTestClient(t), time.Hour)
	ctx := context.Background()

	run := &domain.SimulationRun{
		ID:        "run-1",
		Status:    domain.SimulationRunning,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Save(ctx, run))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SimulationRunning, got.Status)

	missing, err := store.Get(ctx, "run-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunStore_TerminalRunExpiresWithRetention(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewRunStore(client, time.Hour)
	ctx := context.Background()

	run := &domain.SimulationRun{
		ID:          "run-done",
		Status:      domain.SimulationCompleted,
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
	}
	require.NoError(t, store.Save(ctx, run))

	mr.FastForward(2 * time.Hour)

	got, err := store.Get(ctx, "run-done")
	require.NoError(t, err)
	assert.Nil(t, got)

	// List drops the dangling index entry.
	runs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLockStore_MutualExclusion(t *testing.T) {
	t.Parallel()

	store := NewLockStore(newTestClient(t))
	ctx := context.Background()

	ok, err := store.AcquireSweepLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireSweepLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseSweepLock(ctx))

	ok, err = store.AcquireSweepLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
