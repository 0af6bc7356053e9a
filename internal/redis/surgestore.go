package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fare/internal/domain"
	"fare/internal/geo"
)

const (
	surgeKeyPrefix = "surge:"

	// surgeKeyGrace keeps a key readable a little past its logical expiry
	// so readers can observe (and degrade on) the expired record instead
	// of a bare miss.
	surgeKeyGrace = 5 * time.Minute
)

// SurgeStateStore keeps surge snapshots in Redis, one JSON value per
// (cell, service type) key.
type SurgeStateStore struct {
	client *redis.Client
}

// NewSurgeStateStore creates a new SurgeStateStore.
func NewSurgeStateStore(client *redis.Client) *SurgeStateStore {
	return &SurgeStateStore{client: client}
}

func surgeKey(cell geo.CellID, st domain.ServiceType) string {
	return fmt.Sprintf("%s%s:%s", surgeKeyPrefix, cell, st)
}

// Get retrieves the snapshot for a key. A missing key returns (nil, nil);
// callers treat that the same as an expired record.
func (s *SurgeStateStore) Get(ctx context.Context, cell geo.CellID, st domain.ServiceType) (*domain.SurgeState, error) {
	data, err := s.client.Get(ctx, surgeKey(cell, st)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var state domain.SurgeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Put overwrites the snapshot for a key. Each write is a complete
// self-consistent record, so last write wins by design.
func (s *SurgeStateStore) Put(ctx context.Context, state *domain.SurgeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	ttl := time.Until(state.ExpiresAt) + surgeKeyGrace
	if ttl <= 0 {
		ttl = surgeKeyGrace
	}

	key := surgeKey(geo.CellID(state.CellID), state.ServiceType)
	return s.client.Set(ctx, key, data, ttl).Err()
}

// casScript swaps the value only when the stored version matches the
// expected one. A missing key matches expected version 0.
var casScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
local expected = tonumber(ARGV[1])
if cur then
	local decoded = cjson.decode(cur)
	if tonumber(decoded["version"]) ~= expected then
		return 0
	end
elseif expected ~= 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// CompareAndSwap writes the snapshot only if the stored version equals
// expectedVersion. Returns false when another writer got there first.
func (s *SurgeStateStore) CompareAndSwap(ctx context.Context, state *domain.SurgeState, expectedVersion int64) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, err
	}

	ttl := time.Until(state.ExpiresAt) + surgeKeyGrace
	if ttl <= 0 {
		ttl = surgeKeyGrace
	}

	key := surgeKey(geo.CellID(state.CellID), state.ServiceType)
	res, err := casScript.Run(ctx, s.client, []string{key}, expectedVersion, data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// List returns every stored surge snapshot, fresh or not. Used by the
// operator heatmap and the dashboard.
func (s *SurgeStateStore) List(ctx context.Context) ([]*domain.SurgeState, error) {
	var (
		states []*domain.SurgeState
		cursor uint64
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, surgeKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue // expired between scan and get
				}
				return nil, err
			}
			var state domain.SurgeState
			if err := json.Unmarshal(data, &state); err != nil {
				continue // skip malformed entries
			}
			states = append(states, &state)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return states, nil
}
