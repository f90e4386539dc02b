// Package alert decides whether a post-update driver score should fire an
// alert, with a per-driver cooldown lock suppressing repeats.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"go.uber.org/zap"
)

const defaultCooldown = 24 * time.Hour

var ErrLockStoreFailure = errors.New("alert lock store failure")

// LockStore manages the per-driver cooldown markers. Check must re-read the
// remaining TTL rather than trusting store-side expiry callbacks, and
// Acquire must be atomic under concurrent callers.
type LockStore interface {
	Check(ctx context.Context, driverID int64) (held bool, remaining time.Duration, err error)
	Acquire(ctx context.Context, driverID int64, ttl time.Duration) (won bool, err error)
}

// FlagStore mutates the alert_active flag on driver score state. Satisfied
// by the aggregator so flag writes share its per-driver serialization.
type FlagStore interface {
	SetAlertActive(ctx context.Context, driverID int64, active bool) (domain.DriverScoreState, error)
}

// Notifier delivers a fired alert to its audience.
type Notifier interface {
	Notify(ctx context.Context, a domain.Alert) error
}

// Decision describes the outcome of evaluating one score update.
type Decision struct {
	Fired      bool
	Suppressed bool
	Recovered  bool
}

// Decider implements the per-driver alert state machine: fire on crossing
// below threshold without an unexpired lock, suppress while the lock lives,
// clear the active flag immediately on recovery.
type Decider struct {
	threshold float64
	cooldown  time.Duration
	locks     LockStore
	flags     FlagStore
	notifier  Notifier
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Decider.
type Option func(*Decider)

// WithCooldown sets the alert suppression window.
func WithCooldown(d time.Duration) Option {
	return func(dec *Decider) { dec.cooldown = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(dec *Decider) { dec.now = now }
}

// New creates a Decider.
func New(threshold float64, locks LockStore, flags FlagStore, notifier Notifier, logger *zap.Logger, opts ...Option) *Decider {
	if locks == nil {
		panic("lock store must not be nil")
	}
	if flags == nil {
		panic("flag store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Decider{
		threshold: threshold,
		cooldown:  defaultCooldown,
		locks:     locks,
		flags:     flags,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger.Named("alert"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate applies the alert state machine to a freshly updated state.
func (d *Decider) Evaluate(ctx context.Context, state domain.DriverScoreState) (Decision, error) {
	if state.Average >= d.threshold {
		// Recovery is visible immediately; it does not wait for the
		// cooldown lock to expire.
		if state.AlertActive {
			if _, err := d.flags.SetAlertActive(ctx, state.DriverID, false); err != nil {
				return Decision{}, fmt.Errorf("clear alert flag: %w", err)
			}
			d.logger.Info("driver recovered above threshold",
				zap.Int64("driver_id", state.DriverID),
				zap.Float64("average", state.Average))
			return Decision{Recovered: true}, nil
		}
		return Decision{}, nil
	}

	held, remaining, err := d.locks.Check(ctx, state.DriverID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLockStoreFailure, err)
	}
	if held {
		// Still inside the cooldown window: keep the flag up, no repeat alert.
		if !state.AlertActive {
			if _, err := d.flags.SetAlertActive(ctx, state.DriverID, true); err != nil {
				return Decision{}, fmt.Errorf("restore alert flag: %w", err)
			}
		}
		d.logger.Debug("alert suppressed by cooldown",
			zap.Int64("driver_id", state.DriverID),
			zap.Duration("remaining", remaining))
		return Decision{Suppressed: true}, nil
	}

	won, err := d.locks.Acquire(ctx, state.DriverID, d.cooldown)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLockStoreFailure, err)
	}
	if !won {
		// Another worker fired for this driver between Check and Acquire.
		return Decision{Suppressed: true}, nil
	}

	if _, err := d.flags.SetAlertActive(ctx, state.DriverID, true); err != nil {
		return Decision{}, fmt.Errorf("set alert flag: %w", err)
	}

	a := domain.Alert{
		DriverID:  state.DriverID,
		Average:   state.Average,
		Threshold: d.threshold,
		FiredAt:   d.now().UTC(),
	}
	d.logger.Warn("driver score alert",
		zap.Int64("driver_id", a.DriverID),
		zap.Float64("average", a.Average),
		zap.Float64("threshold", a.Threshold))

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, a); err != nil {
			// The lock is already held; a lost notification is logged, not
			// retried, so the cooldown still prevents alert storms.
			d.logger.Error("alert notification failed",
				zap.Int64("driver_id", a.DriverID),
				zap.Error(err))
		}
	}

	return Decision{Fired: true}, nil
}
