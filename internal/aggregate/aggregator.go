// Package aggregate maintains the per-driver running sentiment average using
// an exponential moving average. Updates for one driver are serialized by a
// per-key lock; unrelated drivers proceed fully in parallel.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultAlpha       = 0.1
	defaultSeedAverage = 3.0
	defaultDomainMin   = 0.0
	defaultDomainMax   = 5.0
	defaultScorerMin   = -5.0
	defaultScorerMax   = 5.0
)

var (
	ErrStoreFailure       = errors.New("score store failure")
	ErrInvariantViolation = errors.New("score invariant violation")
)

// ScoreStore persists DriverScoreState. Implementations must be safe for
// concurrent use; serialization per driver is the aggregator's job.
type ScoreStore interface {
	Get(ctx context.Context, driverID int64) (domain.DriverScoreState, bool, error)
	Put(ctx context.Context, state domain.DriverScoreState) error
}

// Aggregator folds sentiment values into per-driver averages.
type Aggregator struct {
	store ScoreStore

	alpha       float64
	seedAverage float64
	domainMin   float64
	domainMax   float64
	scorerMin   float64
	scorerMax   float64

	now func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	logger *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAlpha sets the EMA smoothing factor. Must be in (0, 1]; smaller values
// weight history more heavily.
func WithAlpha(alpha float64) Option {
	return func(a *Aggregator) { a.alpha = alpha }
}

// WithSeedAverage sets the average assigned before a driver's first feedback.
func WithSeedAverage(seed float64) Option {
	return func(a *Aggregator) { a.seedAverage = seed }
}

// WithDomain sets the bounded domain of the running average.
func WithDomain(minV, maxV float64) Option {
	return func(a *Aggregator) {
		a.domainMin = minV
		a.domainMax = maxV
	}
}

// WithScorerRange sets the input range of sentiment values, used by the
// fixed linear rescale into the average's domain.
func WithScorerRange(minV, maxV float64) Option {
	return func(a *Aggregator) {
		a.scorerMin = minV
		a.scorerMax = maxV
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator backed by store.
func New(store ScoreStore, logger *zap.Logger, opts ...Option) *Aggregator {
	if store == nil {
		panic("score store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		store:       store,
		alpha:       defaultAlpha,
		seedAverage: defaultSeedAverage,
		domainMin:   defaultDomainMin,
		domainMax:   defaultDomainMax,
		scorerMin:   defaultScorerMin,
		scorerMax:   defaultScorerMax,
		now:         time.Now,
		locks:       make(map[int64]*sync.Mutex),
		logger:      logger.Named("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// lockFor returns the mutex guarding one driver's state, creating it lazily.
// Locks are never removed: driver state persists for the driver's lifetime.
func (a *Aggregator) lockFor(driverID int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[driverID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[driverID] = l
	}
	return l
}

// MapValue rescales a scorer output into the average's domain using the
// fixed linear mapping, e.g. [-5,+5] onto [0,5].
func (a *Aggregator) MapValue(value float64) float64 {
	ratio := (value - a.scorerMin) / (a.scorerMax - a.scorerMin)
	return a.domainMin + ratio*(a.domainMax-a.domainMin)
}

// Apply atomically folds value into the driver's running average and returns
// the new state. The raw value is first rescaled linearly from the scorer
// range onto the average's domain (the defaults map [-5,+5] onto [0,5], so
// +3.0 becomes 4.0), then folded as alpha*mapped + (1-alpha)*previous. The
// read-modify-write is linearizable per driver.
func (a *Aggregator) Apply(ctx context.Context, driverID int64, value float64) (domain.DriverScoreState, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.DriverScoreState{}, fmt.Errorf("%w: non-finite sentiment value for driver %d", ErrInvariantViolation, driverID)
	}

	mapped := a.MapValue(value)
	if mapped < a.domainMin || mapped > a.domainMax {
		return domain.DriverScoreState{}, fmt.Errorf("%w: mapped value %.4f outside [%.1f, %.1f] for driver %d",
			ErrInvariantViolation, mapped, a.domainMin, a.domainMax, driverID)
	}

	l := a.lockFor(driverID)
	l.Lock()
	defer l.Unlock()

	state, found, err := a.store.Get(ctx, driverID)
	if err != nil {
		return domain.DriverScoreState{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if !found {
		state = domain.DriverScoreState{
			DriverID: driverID,
			Average:  a.seedAverage,
		}
	}

	newAverage := a.alpha*mapped + (1-a.alpha)*state.Average
	if math.IsNaN(newAverage) || newAverage < a.domainMin || newAverage > a.domainMax {
		// a convex combination of in-domain values cannot leave the domain;
		// if it does, the stored state is corrupt and must not be overwritten
		return domain.DriverScoreState{}, fmt.Errorf("%w: computed average %.4f outside [%.1f, %.1f] for driver %d",
			ErrInvariantViolation, newAverage, a.domainMin, a.domainMax, driverID)
	}

	state.Average = newAverage
	state.LastUpdated = a.now().UTC()

	if err := a.store.Put(ctx, state); err != nil {
		return domain.DriverScoreState{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	a.logger.Debug("score updated",
		zap.Int64("driver_id", driverID),
		zap.Float64("mapped_value", mapped),
		zap.Float64("average", state.Average))

	return state, nil
}

// SetAlertActive flips only the alert flag, under the same per-driver lock
// as Apply so flag writes never interleave with score updates.
func (a *Aggregator) SetAlertActive(ctx context.Context, driverID int64, active bool) (domain.DriverScoreState, error) {
	l := a.lockFor(driverID)
	l.Lock()
	defer l.Unlock()

	state, found, err := a.store.Get(ctx, driverID)
	if err != nil {
		return domain.DriverScoreState{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if !found {
		return domain.DriverScoreState{}, fmt.Errorf("%w: no state for driver %d", ErrStoreFailure, driverID)
	}
	if state.AlertActive == active {
		return state, nil
	}

	state.AlertActive = active
	if err := a.store.Put(ctx, state); err != nil {
		return domain.DriverScoreState{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	return state, nil
}
