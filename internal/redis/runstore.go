package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fare/internal/domain"
)

const (
	runKeyPrefix = "simrun:"
	runIndexKey  = "simruns"

	// runningRunTTL is a safety net for runs whose engine died before
	// reaching a terminal state; it is far longer than any legal horizon.
	runningRunTTL = 24 * time.Hour
)

// RunStore persists simulation runs as JSON in Redis. Terminal runs carry
// the retention TTL, so garbage collection is the key expiring.
type RunStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRunStore creates a new RunStore with the given post-completion retention.
func NewRunStore(client *redis.Client, retention time.Duration) *RunStore {
	return &RunStore{client: client, retention: retention}
}

func runKey(id string) string {
	return runKeyPrefix + id
}

// Save writes the run snapshot, resetting the TTL based on its state.
func (s *RunStore) Save(ctx context.Context, run *domain.SimulationRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	ttl := runningRunTTL
	if run.Terminal() {
		ttl = s.retention
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, runKey(run.ID), data, ttl)
	pipe.SAdd(ctx, runIndexKey, run.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a run by id. Returns (nil, nil) when the run is unknown or
// already garbage-collected.
func (s *RunStore) Get(ctx context.Context, id string) (*domain.SimulationRun, error) {
	data, err := s.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var run domain.SimulationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns all runs still within retention, dropping index entries
// whose payload has expired.
func (s *RunStore) List(ctx context.Context) ([]*domain.SimulationRun, error) {
	ids, err := s.client.SMembers(ctx, runIndexKey).Result()
	if err != nil {
		return nil, err
	}

	var runs []*domain.SimulationRun
	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if run == nil {
			s.client.SRem(ctx, runIndexKey, id)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}
