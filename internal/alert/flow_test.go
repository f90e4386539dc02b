package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driverpulse/sentiment-server/internal/aggregate"
	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryScoreStore struct {
	mu     sync.Mutex
	states map[int64]domain.DriverScoreState
}

func (s *memoryScoreStore) Get(_ context.Context, driverID int64) (domain.DriverScoreState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[driverID]
	return state, ok, nil
}

func (s *memoryScoreStore) Put(_ context.Context, state domain.DriverScoreState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.DriverID] = state
	return nil
}

// clockLockStore honors TTLs against an injected clock instead of wall time.
type clockLockStore struct {
	now    func() time.Time
	expiry map[int64]time.Time
}

func (s *clockLockStore) Check(_ context.Context, driverID int64) (bool, time.Duration, error) {
	exp, ok := s.expiry[driverID]
	if !ok || !s.now().Before(exp) {
		return false, 0, nil
	}
	return true, exp.Sub(s.now()), nil
}

func (s *clockLockStore) Acquire(_ context.Context, driverID int64, ttl time.Duration) (bool, error) {
	if exp, ok := s.expiry[driverID]; ok && s.now().Before(exp) {
		return false, nil
	}
	s.expiry[driverID] = s.now().Add(ttl)
	return true, nil
}

// TestAlertFlowWithCooldown runs a driver's feedback sequence through the
// real aggregator and decider: repeated bad feedback fires exactly one alert
// until the cooldown lapses, then re-fires, and sustained good feedback
// recovers the driver and clears the flag.
func TestAlertFlowWithCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	scores := &memoryScoreStore{states: make(map[int64]domain.DriverScoreState)}
	agg := aggregate.New(scores, zap.NewNop())
	locks := &clockLockStore{now: clock, expiry: make(map[int64]time.Time)}
	notifier := &fakeNotifier{}
	d := New(2.5, locks, agg, notifier, zap.NewNop(),
		WithCooldown(24*time.Hour),
		WithClock(clock),
	)

	apply := func(value float64) Decision {
		t.Helper()
		state, err := agg.Apply(ctx, 7, value)
		require.NoError(t, err)
		decision, err := d.Evaluate(ctx, state)
		require.NoError(t, err)
		return decision
	}

	// Seed 3.0, alpha 0.1, worst value maps to 0: the average decays
	// 2.7, 2.43, 2.187, ... and first drops below 2.5 on the second event.
	assert.Equal(t, Decision{}, apply(-5))

	decision := apply(-5)
	assert.True(t, decision.Fired)
	require.Len(t, notifier.alerts, 1)
	assert.InDelta(t, 2.43, notifier.alerts[0].Average, 1e-9)

	// Further bad feedback inside the cooldown never repeats the alert.
	for i := 0; i < 3; i++ {
		decision = apply(-5)
		assert.True(t, decision.Suppressed)
		assert.False(t, decision.Fired)
	}
	assert.Len(t, notifier.alerts, 1)
	assert.True(t, scores.states[7].AlertActive)

	// Once the cooldown lapses the still-degraded driver fires again.
	now = now.Add(25 * time.Hour)
	decision = apply(-5)
	assert.True(t, decision.Fired)
	require.Len(t, notifier.alerts, 2)
	assert.InDelta(t, 1.594323, notifier.alerts[1].Average, 1e-6)

	// Good feedback pulls the average back up: 1.93, 2.24, then 2.52
	// crosses the threshold and clears the flag without a new alert.
	assert.True(t, apply(5).Suppressed)
	assert.True(t, apply(5).Suppressed)

	decision = apply(5)
	assert.True(t, decision.Recovered)
	assert.False(t, scores.states[7].AlertActive)
	assert.InDelta(t, 2.517261467, scores.states[7].Average, 1e-6)
	assert.Len(t, notifier.alerts, 2)
}
