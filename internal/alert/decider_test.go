package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLockStore struct {
	CheckFunc   func(ctx context.Context, driverID int64) (bool, time.Duration, error)
	AcquireFunc func(ctx context.Context, driverID int64, ttl time.Duration) (bool, error)
}

func (f *fakeLockStore) Check(ctx context.Context, driverID int64) (bool, time.Duration, error) {
	if f.CheckFunc != nil {
		return f.CheckFunc(ctx, driverID)
	}
	return false, 0, nil
}

func (f *fakeLockStore) Acquire(ctx context.Context, driverID int64, ttl time.Duration) (bool, error) {
	if f.AcquireFunc != nil {
		return f.AcquireFunc(ctx, driverID, ttl)
	}
	return true, nil
}

type fakeFlagStore struct {
	calls []bool
	err   error
}

func (f *fakeFlagStore) SetAlertActive(_ context.Context, driverID int64, active bool) (domain.DriverScoreState, error) {
	if f.err != nil {
		return domain.DriverScoreState{}, f.err
	}
	f.calls = append(f.calls, active)
	return domain.DriverScoreState{DriverID: driverID, AlertActive: active}, nil
}

type fakeNotifier struct {
	alerts []domain.Alert
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, a domain.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, a)
	return nil
}

func TestNew(t *testing.T) {
	t.Run("nil lock store panics", func(t *testing.T) {
		assert.Panics(t, func() {
			New(2.5, nil, &fakeFlagStore{}, nil, zap.NewNop())
		})
	})

	t.Run("nil flag store panics", func(t *testing.T) {
		assert.Panics(t, func() {
			New(2.5, &fakeLockStore{}, nil, nil, zap.NewNop())
		})
	})
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	fired := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("healthy driver is a no-op", func(t *testing.T) {
		flags := &fakeFlagStore{}
		d := New(2.5, &fakeLockStore{}, flags, nil, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 4.2})
		require.NoError(t, err)
		assert.Equal(t, Decision{}, decision)
		assert.Empty(t, flags.calls)
	})

	t.Run("recovery clears the flag immediately", func(t *testing.T) {
		flags := &fakeFlagStore{}
		locks := &fakeLockStore{
			CheckFunc: func(context.Context, int64) (bool, time.Duration, error) {
				t.Fatal("lock state must not gate recovery")
				return false, 0, nil
			},
		}
		d := New(2.5, locks, flags, nil, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.6, AlertActive: true})
		require.NoError(t, err)
		assert.True(t, decision.Recovered)
		assert.Equal(t, []bool{false}, flags.calls)
	})

	t.Run("crossing below threshold fires", func(t *testing.T) {
		flags := &fakeFlagStore{}
		notifier := &fakeNotifier{}
		var acquiredTTL time.Duration
		locks := &fakeLockStore{
			AcquireFunc: func(_ context.Context, _ int64, ttl time.Duration) (bool, error) {
				acquiredTTL = ttl
				return true, nil
			},
		}
		d := New(2.5, locks, flags, notifier, zap.NewNop(),
			WithCooldown(6*time.Hour),
			WithClock(func() time.Time { return fired }),
		)

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.3})
		require.NoError(t, err)
		assert.True(t, decision.Fired)
		assert.Equal(t, []bool{true}, flags.calls)
		assert.Equal(t, 6*time.Hour, acquiredTTL)

		require.Len(t, notifier.alerts, 1)
		a := notifier.alerts[0]
		assert.Equal(t, int64(1), a.DriverID)
		assert.Equal(t, 2.3, a.Average)
		assert.Equal(t, 2.5, a.Threshold)
		assert.Equal(t, fired, a.FiredAt)
	})

	t.Run("average exactly at threshold does not fire", func(t *testing.T) {
		flags := &fakeFlagStore{}
		d := New(2.5, &fakeLockStore{}, flags, nil, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.5})
		require.NoError(t, err)
		assert.Equal(t, Decision{}, decision)
	})

	t.Run("active cooldown suppresses", func(t *testing.T) {
		flags := &fakeFlagStore{}
		notifier := &fakeNotifier{}
		locks := &fakeLockStore{
			CheckFunc: func(context.Context, int64) (bool, time.Duration, error) {
				return true, time.Hour, nil
			},
			AcquireFunc: func(context.Context, int64, time.Duration) (bool, error) {
				t.Fatal("must not acquire while the lock is held")
				return false, nil
			},
		}
		d := New(2.5, locks, flags, notifier, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0, AlertActive: true})
		require.NoError(t, err)
		assert.True(t, decision.Suppressed)
		assert.Empty(t, notifier.alerts)
		assert.Empty(t, flags.calls)
	})

	t.Run("suppression restores a dropped flag", func(t *testing.T) {
		flags := &fakeFlagStore{}
		locks := &fakeLockStore{
			CheckFunc: func(context.Context, int64) (bool, time.Duration, error) {
				return true, time.Hour, nil
			},
		}
		d := New(2.5, locks, flags, nil, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		require.NoError(t, err)
		assert.True(t, decision.Suppressed)
		assert.Equal(t, []bool{true}, flags.calls)
	})

	t.Run("lost acquire race suppresses", func(t *testing.T) {
		notifier := &fakeNotifier{}
		locks := &fakeLockStore{
			AcquireFunc: func(context.Context, int64, time.Duration) (bool, error) {
				return false, nil
			},
		}
		d := New(2.5, locks, &fakeFlagStore{}, notifier, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		require.NoError(t, err)
		assert.True(t, decision.Suppressed)
		assert.Empty(t, notifier.alerts)
	})

	t.Run("check failure surfaces as lock store failure", func(t *testing.T) {
		locks := &fakeLockStore{
			CheckFunc: func(context.Context, int64) (bool, time.Duration, error) {
				return false, 0, errors.New("redis down")
			},
		}
		d := New(2.5, locks, &fakeFlagStore{}, nil, zap.NewNop())

		_, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		assert.ErrorIs(t, err, ErrLockStoreFailure)
	})

	t.Run("acquire failure surfaces as lock store failure", func(t *testing.T) {
		locks := &fakeLockStore{
			AcquireFunc: func(context.Context, int64, time.Duration) (bool, error) {
				return false, errors.New("redis down")
			},
		}
		d := New(2.5, locks, &fakeFlagStore{}, nil, zap.NewNop())

		_, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		assert.ErrorIs(t, err, ErrLockStoreFailure)
	})

	t.Run("notifier failure does not undo the fire", func(t *testing.T) {
		notifier := &fakeNotifier{err: errors.New("nats down")}
		d := New(2.5, &fakeLockStore{}, &fakeFlagStore{}, notifier, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		require.NoError(t, err)
		assert.True(t, decision.Fired)
	})

	t.Run("nil notifier still fires", func(t *testing.T) {
		d := New(2.5, &fakeLockStore{}, &fakeFlagStore{}, nil, zap.NewNop())

		decision, err := d.Evaluate(ctx, domain.DriverScoreState{DriverID: 1, Average: 2.0})
		require.NoError(t, err)
		assert.True(t, decision.Fired)
	})
}
