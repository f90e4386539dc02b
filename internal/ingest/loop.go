// Package ingest runs the feedback pipeline: it pulls events from the
// inbound channel, guards against duplicates, scores the text, folds the
// result into the driver's running average, records the event durably and
// evaluates alerting, acknowledging the source only after every step
// succeeded.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/driverpulse/sentiment-server/internal/alert"
	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/driverpulse/sentiment-server/internal/idempotency"
	"github.com/driverpulse/sentiment-server/internal/repository"
	"github.com/driverpulse/sentiment-server/internal/repository/models"
	"github.com/driverpulse/sentiment-server/internal/sentiment"
	"github.com/driverpulse/sentiment-server/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers       = 4
	defaultFetchBatch    = 16
	defaultEventTimeout  = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 200 * time.Millisecond
	defaultMaxDeliveries = 5
)

// Message is one in-flight inbound message. Modeled on an explicit-ack
// stream consumer: Ack marks success, Nak requests redelivery, Term stops
// redelivery permanently.
type Message interface {
	Data() []byte
	Deliveries() uint64
	Ack() error
	Nak() error
	Term() error
}

// Source supplies inbound messages. Fetch may block up to an internal wait
// and returns an empty batch when nothing arrived.
type Source interface {
	Fetch(ctx context.Context, batch int) ([]Message, error)
}

// DeadLetterPublisher routes unprocessable messages to the dead-letter
// channel.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, dl domain.DeadLetter) error
}

// Guard is the idempotency boundary of the pipeline.
type Guard interface {
	Begin(ctx context.Context, eventID string) (idempotency.Status, error)
	Commit(ctx context.Context, eventID string) error
	Abort(ctx context.Context, eventID string) error
}

// Analyzer scores raw feedback text.
type Analyzer interface {
	Analyze(text string) sentiment.Result
}

// Aggregator folds a sentiment value into the driver's running average.
type Aggregator interface {
	Apply(ctx context.Context, driverID int64, value float64) (domain.DriverScoreState, error)
}

// Decider evaluates the post-update state for alerting.
type Decider interface {
	Evaluate(ctx context.Context, state domain.DriverScoreState) (alert.Decision, error)
}

// Recorder appends the immutable event plus its computed score. Exists is
// the durable backstop of the idempotency guard: a record outliving its
// marker still identifies a replay.
type Recorder interface {
	Insert(ctx context.Context, rec models.FeedbackRecord) error
	Exists(ctx context.Context, eventID string) (bool, error)
}

// Loop coordinates a pool of workers over the inbound channel.
type Loop struct {
	source     Source
	guard      Guard
	analyzer   Analyzer
	aggregator Aggregator
	decider    Decider
	recorder   Recorder
	dlq        DeadLetterPublisher
	logger     *zap.Logger

	workers       int
	fetchBatch    int
	eventTimeout  time.Duration
	retryAttempts int
	retryBackoff  time.Duration
	maxDeliveries uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithWorkers sets the number of concurrent pipeline workers.
func WithWorkers(n int) Option {
	return func(l *Loop) { l.workers = n }
}

// WithFetchBatch sets how many messages one fetch requests.
func WithFetchBatch(n int) Option {
	return func(l *Loop) { l.fetchBatch = n }
}

// WithEventTimeout sets the hard per-event processing deadline.
func WithEventTimeout(d time.Duration) Option {
	return func(l *Loop) { l.eventTimeout = d }
}

// WithRetry sets the bounded local retry policy for transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(l *Loop) {
		l.retryAttempts = attempts
		l.retryBackoff = backoff
	}
}

// WithMaxDeliveries sets the delivery count after which a transiently
// failing message escalates to the dead-letter channel instead of another
// redelivery round.
func WithMaxDeliveries(n uint64) Option {
	return func(l *Loop) { l.maxDeliveries = n }
}

// New creates a Loop. All collaborators are required except dlq, which may
// be nil only in tests.
func New(source Source, guard Guard, analyzer Analyzer, aggregator Aggregator, decider Decider, recorder Recorder, dlq DeadLetterPublisher, logger *zap.Logger, opts ...Option) *Loop {
	if source == nil || guard == nil || analyzer == nil || aggregator == nil || decider == nil || recorder == nil {
		panic("ingest loop requires all pipeline stages")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		source:        source,
		guard:         guard,
		analyzer:      analyzer,
		aggregator:    aggregator,
		decider:       decider,
		recorder:      recorder,
		dlq:           dlq,
		logger:        logger.Named("ingest"),
		workers:       defaultWorkers,
		fetchBatch:    defaultFetchBatch,
		eventTimeout:  defaultEventTimeout,
		retryAttempts: defaultRetryAttempts,
		retryBackoff:  defaultRetryBackoff,
		maxDeliveries: defaultMaxDeliveries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts the worker pool and blocks until ctx is canceled and every
// in-flight event finished its pipeline.
func (l *Loop) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)
	for i := 0; i < l.workers; i++ {
		worker := i
		g.Go(func() error {
			l.runWorker(runCtx, worker)
			return nil
		})
	}
	l.logger.Info("ingestion loop started", zap.Int("workers", l.workers))
	return g.Wait()
}

func (l *Loop) runWorker(ctx context.Context, id int) {
	log := l.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		default:
		}

		msgs, err := l.source.Fetch(ctx, l.fetchBatch)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return
			}
			log.Warn("fetch failed", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			l.handle(ctx, msg, log)
		}
	}
}

// handle processes one message to completion. The processing context is
// detached from the run context so cancellation stops fetching but lets the
// in-flight event finish, bounded by the hard event timeout.
func (l *Loop) handle(runCtx context.Context, msg Message, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), l.eventTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordProcessingSeconds(time.Since(start).Seconds())
	}()

	var event domain.FeedbackEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		l.deadLetter(ctx, msg, KindValidation, fmt.Errorf("%w: %v", ErrMalformedPayload, err), log)
		return
	}
	if err := event.Validate(); err != nil {
		l.deadLetter(ctx, msg, KindValidation, err, log)
		return
	}

	log = log.With(zap.String("event_id", event.EventID), zap.Int64("driver_id", event.DriverID))

	status, err := l.beginGuarded(ctx, event.EventID)
	if err != nil {
		// Never process unchecked when the marker store is down.
		l.deadLetter(ctx, msg, KindTransient, err, log)
		return
	}
	switch status {
	case idempotency.StatusDuplicate:
		metrics.RecordEventDuplicate()
		l.ack(msg, log)
		return
	case idempotency.StatusInFlight:
		// An earlier attempt holds the lease and may have crashed before
		// committing. Acking here would lose the event forever; leave it to
		// the broker to redeliver after the lease expires.
		log.Warn("event leased by an earlier attempt, leaving for redelivery")
		if err := msg.Nak(); err != nil {
			log.Warn("nak failed", zap.Error(err))
		}
		return
	}

	// A durable record with no marker means a committed event whose marker
	// was lost (failed promotion, retention overrun). Re-applying it would
	// move the average twice, so promote the marker again and ack.
	var recorded bool
	err = l.withRetry(ctx, func() error {
		var existsErr error
		recorded, existsErr = l.recorder.Exists(ctx, event.EventID)
		return existsErr
	})
	if err != nil {
		l.failAttempt(ctx, msg, event.EventID, err, log)
		return
	}
	if recorded {
		if err := l.guard.Commit(ctx, event.EventID); err != nil {
			log.Warn("marker commit failed", zap.Error(err))
		}
		metrics.RecordEventDuplicate()
		l.ack(msg, log)
		return
	}

	scoreStart := time.Now()
	result := l.analyzer.Analyze(event.Text)
	metrics.RecordScoringSeconds(time.Since(scoreStart).Seconds())

	var state domain.DriverScoreState
	err = l.withRetry(ctx, func() error {
		var applyErr error
		state, applyErr = l.aggregator.Apply(ctx, event.DriverID, result.Value)
		return applyErr
	})
	if err != nil {
		l.failAttempt(ctx, msg, event.EventID, err, log)
		return
	}

	err = l.withRetry(ctx, func() error {
		insertErr := l.recorder.Insert(ctx, models.FeedbackRecord{
			EventID:        event.EventID,
			DriverID:       event.DriverID,
			Category:       string(event.Category),
			Text:           event.Text,
			SentimentValue: result.Value,
			RecordedAt:     event.SubmittedAt,
		})
		if errors.Is(insertErr, repository.ErrDuplicateRecord) {
			// Already durable from an earlier attempt; idempotent success.
			return nil
		}
		return insertErr
	})
	if err != nil {
		l.failAttempt(ctx, msg, event.EventID, err, log)
		return
	}

	decision, err := l.decider.Evaluate(ctx, state)
	switch {
	case err != nil:
		// Alerting never aborts a processed event; the score and record are
		// already in place.
		log.Error("alert evaluation failed", zap.Error(err))
	case decision.Fired:
		metrics.RecordAlertFired()
	case decision.Suppressed:
		metrics.RecordAlertSuppressed()
	}

	if err := l.guard.Commit(ctx, event.EventID); err != nil {
		// The lease still covers the redelivery window; worst case the
		// marker expires early and a late redelivery reprocesses.
		log.Warn("marker commit failed", zap.Error(err))
	}

	l.ack(msg, log)
	metrics.RecordEventProcessed()
	log.Info("event processed",
		zap.Float64("sentiment_value", result.Value),
		zap.Float64("average", state.Average),
		zap.Strings("matched_terms", result.MatchedTerms))
}

func (l *Loop) beginGuarded(ctx context.Context, eventID string) (idempotency.Status, error) {
	var status idempotency.Status
	err := l.withRetry(ctx, func() error {
		var beginErr error
		status, beginErr = l.guard.Begin(ctx, eventID)
		return beginErr
	})
	return status, err
}

// failAttempt releases the idempotency marker and either leaves the message
// for redelivery (transient, deliveries remaining) or dead-letters it.
func (l *Loop) failAttempt(ctx context.Context, msg Message, eventID string, cause error, log *zap.Logger) {
	if abortErr := l.guard.Abort(ctx, eventID); abortErr != nil {
		log.Warn("marker release failed", zap.Error(abortErr))
	}

	if !isTransient(cause) {
		l.deadLetter(ctx, msg, classifyKind(cause), cause, log)
		return
	}

	if msg.Deliveries() >= l.maxDeliveries {
		l.deadLetter(ctx, msg, classifyKind(cause), fmt.Errorf("delivery attempts exhausted: %w", cause), log)
		return
	}

	log.Warn("transient failure, leaving for redelivery",
		zap.Uint64("deliveries", msg.Deliveries()),
		zap.Error(cause))
	if err := msg.Nak(); err != nil {
		log.Warn("nak failed", zap.Error(err))
	}
}

// deadLetter publishes the original payload plus error classification and
// terminates redelivery. If the dead-letter channel itself is unavailable
// the message is left for redelivery instead of being dropped.
func (l *Loop) deadLetter(ctx context.Context, msg Message, kind string, cause error, log *zap.Logger) {
	dl := domain.DeadLetter{
		Payload:      msg.Data(),
		ErrorKind:    kind,
		ErrorMessage: cause.Error(),
		FailedAt:     time.Now().UTC(),
	}

	if l.dlq != nil {
		if err := l.dlq.Publish(ctx, dl); err != nil {
			log.Error("dead-letter publish failed", zap.String("kind", kind), zap.Error(err))
			if nakErr := msg.Nak(); nakErr != nil {
				log.Warn("nak failed", zap.Error(nakErr))
			}
			return
		}
	}

	metrics.RecordEventDeadLettered(kind)
	log.Warn("event dead-lettered", zap.String("kind", kind), zap.String("error", cause.Error()))
	if err := msg.Term(); err != nil {
		log.Warn("term failed", zap.Error(err))
	}
}

// withRetry runs fn with bounded retries and linear backoff for transient
// failures.
func (l *Loop) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < l.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.RecordEventRetried()
			select {
			case <-time.After(time.Duration(attempt) * l.retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return err
}

func (l *Loop) ack(msg Message, log *zap.Logger) {
	if err := msg.Ack(); err != nil {
		log.Warn("ack failed", zap.Error(err))
	}
}
