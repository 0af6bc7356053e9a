package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fare/internal/domain"
	"fare/internal/geo"
)

const (
	driverLocationKeyPrefix = "drivers:loc:" // GEO set per service type
	demandKeyPrefix         = "demand:"      // counter per (cell, service)
	activeTripsKeyPrefix    = "trips:active:"
	activeCellsKey          = "cells:active" // sorted set scored by last activity

	// demandWindow is how long an open request contributes to demand.
	demandWindow = 2 * time.Minute
)

// ActivityStore is the production supply/demand source. Driver positions
// live in per-service GEO sets; demand and active trips are short-lived
// per-cell counters. Every write refreshes the active-cell set the surge
// sweep iterates over.
type ActivityStore struct {
	client *redis.Client
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(client *redis.Client) *ActivityStore {
	return &ActivityStore{client: client}
}

func demandKey(cell geo.CellID, st domain.ServiceType) string {
	return fmt.Sprintf("%s%s:%s", demandKeyPrefix, cell, st)
}

func activeTripsKey(cell geo.CellID, st domain.ServiceType) string {
	return fmt.Sprintf("%s%s:%s", activeTripsKeyPrefix, cell, st)
}

// UpdateDriverLocation stores a driver's position using GEOADD and marks
// the containing cell active.
func (s *ActivityStore) UpdateDriverLocation(ctx context.Context, driverID string, st domain.ServiceType, lat, lng float64) error {
	cell, err := geo.CellForLatLng(lat, lng, geo.DefaultResolution)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.GeoAdd(ctx, driverLocationKeyPrefix+string(st), &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	})
	pipe.ZAdd(ctx, activeCellsKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: string(cell),
	})
	_, err = pipe.Exec(ctx)
	return err
}

// RemoveDriverLocation removes a driver from the GEO set when they go offline.
func (s *ActivityStore) RemoveDriverLocation(ctx context.Context, driverID string, st domain.ServiceType) error {
	return s.client.ZRem(ctx, driverLocationKeyPrefix+string(st), driverID).Err()
}

// RecordDemand increments the demand counter for a cell and marks it active.
// The counter expires with the demand window, so demand is inherently recent.
func (s *ActivityStore) RecordDemand(ctx context.Context, cell geo.CellID, st domain.ServiceType) error {
	key := demandKey(cell, st)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, demandWindow)
	pipe.ZAdd(ctx, activeCellsKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: string(cell),
	})
	_, err := pipe.Exec(ctx)
	return err
}

// SetActiveTrips records the in-progress trip count for a cell.
func (s *ActivityStore) SetActiveTrips(ctx context.Context, cell geo.CellID, st domain.ServiceType, count int) error {
	return s.client.Set(ctx, activeTripsKey(cell, st), count, demandWindow).Err()
}

// Counts returns the current supply/demand snapshot for one key. Supply is
// a GEORADIUS count around the cell center wide enough to cover the cell.
func (s *ActivityStore) Counts(ctx context.Context, cell geo.CellID, st domain.ServiceType) (domain.Counts, error) {
	lat, lng := cell.Center()

	drivers, err := s.client.GeoRadius(ctx, driverLocationKeyPrefix+string(st), lng, lat, &redis.GeoRadiusQuery{
		Radius: cell.RadiusKm(),
		Unit:   "km",
	}).Result()
	if err != nil && err != redis.Nil {
		return domain.Counts{}, err
	}

	demand, err := s.getCounter(ctx, demandKey(cell, st))
	if err != nil {
		return domain.Counts{}, err
	}

	trips, err := s.getCounter(ctx, activeTripsKey(cell, st))
	if err != nil {
		return domain.Counts{}, err
	}

	return domain.Counts{
		Supply:      len(drivers),
		Demand:      demand,
		ActiveTrips: trips,
	}, nil
}

func (s *ActivityStore) getCounter(ctx context.Context, key string) (int, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ActiveCells returns cells with driver or rider activity inside the
// window and prunes everything older. Cells that fall out of this set are
// dropped from recomputation rather than refreshed.
func (s *ActivityStore) ActiveCells(ctx context.Context, window time.Duration) ([]geo.CellID, error) {
	cutoff := time.Now().Add(-window).Unix()

	// Prune first so the set does not grow without bound.
	if err := s.client.ZRemRangeByScore(ctx, activeCellsKey, "-inf", strconv.FormatInt(cutoff-1, 10)).Err(); err != nil {
		return nil, err
	}

	members, err := s.client.ZRangeByScore(ctx, activeCellsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	cells := make([]geo.CellID, 0, len(members))
	for _, m := range members {
		cells = append(cells, geo.CellID(m))
	}
	return cells, nil
}
