// Package idempotency rejects feedback events that were already processed,
// keyed by the caller-supplied event id. Markers are leased in a pending
// state before any side effect becomes observable and promoted to a done
// marker with a long retention window only after the whole pipeline
// succeeds, so an attempt that crashed mid-flight becomes retryable once its
// lease expires while a completed event stays deduplicated.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultLease     = 5 * time.Minute
	defaultRetention = 48 * time.Hour

	markerPending = "pending"
	markerDone    = "done"
)

// Status is the result of checking an event id.
type Status int

const (
	// StatusNew means this caller claimed the event and must process it.
	StatusNew Status = iota
	// StatusInFlight means an earlier attempt holds an unexpired lease but
	// never committed. The event must not be processed now and must not be
	// acknowledged: once the lease expires a redelivery will reprocess it.
	StatusInFlight
	// StatusDuplicate means the event was fully processed before.
	StatusDuplicate
)

var ErrMarkerStoreFailure = errors.New("idempotency marker store failure")

// MarkerStore is the durable set of processed-or-in-flight event ids.
// SetIfAbsent must be atomic with respect to concurrent callers.
type MarkerStore interface {
	SetIfAbsent(ctx context.Context, eventID, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, eventID string) (value string, found bool, err error)
	Set(ctx context.Context, eventID, value string, ttl time.Duration) error
	Delete(ctx context.Context, eventID string) error
}

// Guard wraps a MarkerStore with the lease/retention protocol.
type Guard struct {
	store     MarkerStore
	lease     time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLease sets the in-flight marker TTL. It bounds how long a crashed
// attempt blocks reprocessing of the same event.
func WithLease(d time.Duration) Option {
	return func(g *Guard) { g.lease = d }
}

// WithRetention sets the committed marker TTL. It must exceed the maximum
// plausible redelivery delay of the upstream transport.
func WithRetention(d time.Duration) Option {
	return func(g *Guard) { g.retention = d }
}

// New creates a Guard backed by store.
func New(store MarkerStore, logger *zap.Logger, opts ...Option) *Guard {
	if store == nil {
		panic("marker store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		store:     store,
		lease:     defaultLease,
		retention: defaultRetention,
		logger:    logger.Named("idempotency"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Begin atomically claims eventID before any processing side effect. When the
// claim is lost it inspects the existing marker: a done marker means the
// event already completed, anything else means an earlier attempt is (or
// was) in flight and the caller must leave the message for redelivery. A
// store failure is returned as-is: the caller must dead-letter rather than
// process unchecked.
func (g *Guard) Begin(ctx context.Context, eventID string) (Status, error) {
	claimed, err := g.store.SetIfAbsent(ctx, eventID, markerPending, g.lease)
	if err != nil {
		return StatusNew, fmt.Errorf("%w: %v", ErrMarkerStoreFailure, err)
	}
	if claimed {
		return StatusNew, nil
	}

	value, found, err := g.store.Get(ctx, eventID)
	if err != nil {
		return StatusNew, fmt.Errorf("%w: %v", ErrMarkerStoreFailure, err)
	}
	if found && value == markerDone {
		g.logger.Info("duplicate event detected", zap.String("event_id", eventID))
		return StatusDuplicate, nil
	}
	// Pending marker, or a marker that expired between the claim and the
	// read: either way the safe answer is redelivery, never an ack.
	g.logger.Info("event still leased by an earlier attempt", zap.String("event_id", eventID))
	return StatusInFlight, nil
}

// Commit promotes the marker to a done marker held for the full retention
// window after the event was fully processed.
func (g *Guard) Commit(ctx context.Context, eventID string) error {
	if err := g.store.Set(ctx, eventID, markerDone, g.retention); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerStoreFailure, err)
	}
	return nil
}

// Abort releases the marker of a failed attempt so a redelivery can
// reprocess the event without waiting for the lease to expire.
func (g *Guard) Abort(ctx context.Context, eventID string) error {
	if err := g.store.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerStoreFailure, err)
	}
	return nil
}
