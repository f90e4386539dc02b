package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driverpulse/sentiment-server/pkg/cache"
)

const markerPrefix = "feedback:seen:"

func markerKey(eventID string) string {
	return markerPrefix + eventID
}

// MarkerStore is the redis-backed processed-or-in-flight event id set used
// by the idempotency guard. The stored value distinguishes a pending lease
// from a committed marker; SetIfAbsent maps to SETNX so concurrent workers
// racing on the same event id cannot both claim it.
type MarkerStore struct {
	cache *cache.Cache
}

func NewMarkerStore(c *cache.Cache) *MarkerStore {
	return &MarkerStore{cache: c}
}

func (s *MarkerStore) SetIfAbsent(ctx context.Context, eventID, value string, ttl time.Duration) (bool, error) {
	claimed, err := s.cache.SetIfAbsent(ctx, markerKey(eventID), value, ttl)
	if err != nil {
		return false, fmt.Errorf("claim marker %s: %w", eventID, err)
	}
	return claimed, nil
}

func (s *MarkerStore) Get(ctx context.Context, eventID string) (string, bool, error) {
	var value string
	err := s.cache.Get(ctx, markerKey(eventID), &value)
	if errors.Is(err, cache.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read marker %s: %w", eventID, err)
	}
	return value, true, nil
}

func (s *MarkerStore) Set(ctx context.Context, eventID, value string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, markerKey(eventID), value, ttl); err != nil {
		return fmt.Errorf("write marker %s: %w", eventID, err)
	}
	return nil
}

func (s *MarkerStore) Delete(ctx context.Context, eventID string) error {
	if err := s.cache.Delete(ctx, markerKey(eventID)); err != nil {
		return fmt.Errorf("delete marker %s: %w", eventID, err)
	}
	return nil
}
