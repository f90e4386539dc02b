// Package store provides the redis-backed implementations of the pipeline's
// shared state: driver score state, alert cooldown locks and idempotency
// markers.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/driverpulse/sentiment-server/pkg/cache"
)

const driverScoresKey = "driver:scores"

// ScoreStore keeps one DriverScoreState per driver in a redis hash so the
// dashboard-facing read path can list all drivers in a single call.
type ScoreStore struct {
	cache *cache.Cache
}

func NewScoreStore(c *cache.Cache) *ScoreStore {
	return &ScoreStore{cache: c}
}

func (s *ScoreStore) Get(ctx context.Context, driverID int64) (domain.DriverScoreState, bool, error) {
	var state domain.DriverScoreState
	err := s.cache.HGet(ctx, driverScoresKey, strconv.FormatInt(driverID, 10), &state)
	if errors.Is(err, cache.ErrNotFound) {
		return domain.DriverScoreState{}, false, nil
	}
	if err != nil {
		return domain.DriverScoreState{}, false, fmt.Errorf("get driver score %d: %w", driverID, err)
	}
	return state, true, nil
}

func (s *ScoreStore) Put(ctx context.Context, state domain.DriverScoreState) error {
	if err := s.cache.HSet(ctx, driverScoresKey, strconv.FormatInt(state.DriverID, 10), state); err != nil {
		return fmt.Errorf("put driver score %d: %w", state.DriverID, err)
	}
	return nil
}

// All returns the score state of every known driver.
func (s *ScoreStore) All(ctx context.Context) ([]domain.DriverScoreState, error) {
	raw, err := s.cache.HGetAll(ctx, driverScoresKey)
	if err != nil {
		return nil, fmt.Errorf("list driver scores: %w", err)
	}
	states := make([]domain.DriverScoreState, 0, len(raw))
	for field, value := range raw {
		var state domain.DriverScoreState
		if err := unmarshalState(value, &state); err != nil {
			return nil, fmt.Errorf("decode driver score %s: %w", field, err)
		}
		states = append(states, state)
	}
	return states, nil
}
