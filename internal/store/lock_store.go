package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/driverpulse/sentiment-server/pkg/cache"
)

const alertLockPrefix = "driver:alert-lock:"

func alertLockKey(driverID int64) string {
	return alertLockPrefix + strconv.FormatInt(driverID, 10)
}

// AlertLockStore holds the per-driver cooldown markers as expiring redis
// keys. Presence is always re-checked against the remaining TTL at decision
// time; nothing depends on expiry notifications.
type AlertLockStore struct {
	cache *cache.Cache
}

func NewAlertLockStore(c *cache.Cache) *AlertLockStore {
	return &AlertLockStore{cache: c}
}

func (s *AlertLockStore) Check(ctx context.Context, driverID int64) (bool, time.Duration, error) {
	remaining, found, err := s.cache.TTL(ctx, alertLockKey(driverID))
	if err != nil {
		return false, 0, fmt.Errorf("check alert lock %d: %w", driverID, err)
	}
	return found, remaining, nil
}

func (s *AlertLockStore) Acquire(ctx context.Context, driverID int64, ttl time.Duration) (bool, error) {
	won, err := s.cache.SetIfAbsent(ctx, alertLockKey(driverID), time.Now().UTC(), ttl)
	if err != nil {
		return false, fmt.Errorf("acquire alert lock %d: %w", driverID, err)
	}
	return won, nil
}

func unmarshalState(raw string, dest any) error {
	return json.Unmarshal([]byte(raw), dest)
}
