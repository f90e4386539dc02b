// Package service exposes the read-only query surface consumed by the
// dashboard layer: live driver score state and durable feedback history.
// Nothing in this package writes; the aggregator and alert decider remain
// the only writers of shared state.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	dbTimeout           = 1 * time.Second
	defaultHistoryLimit = 50
)

var (
	ErrDriverNotFound = errors.New("driver not found")
	ErrStorageFailure = errors.New("storage failure")
)

// QueryService answers dashboard reads over the score store and the durable
// record log.
type QueryService struct {
	scores  ScoreReader
	locks   LockReader
	history HistoryRepository
	logger  *zap.Logger
}

// NewQueryService creates a QueryService instance.
func NewQueryService(scores ScoreReader, locks LockReader, history HistoryRepository, logger *zap.Logger) *QueryService {
	if scores == nil {
		panic("score reader must not be nil")
	}
	if locks == nil {
		panic("lock reader must not be nil")
	}
	if history == nil {
		panic("history repository must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &QueryService{
		scores:  scores,
		locks:   locks,
		history: history,
		logger:  logger.Named("query"),
	}
}

// GetDriverScore returns the live state of one driver plus its cooldown
// lock status.
func (s *QueryService) GetDriverScore(ctx context.Context, driverID int64) (DriverScoreStatus, error) {
	state, found, err := s.scores.Get(ctx, driverID)
	if err != nil {
		return DriverScoreStatus{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !found {
		return DriverScoreStatus{}, ErrDriverNotFound
	}

	status := DriverScoreStatus{
		DriverID:    state.DriverID,
		Average:     state.Average,
		LastUpdated: state.LastUpdated,
		AlertActive: state.AlertActive,
	}

	held, remaining, err := s.locks.Check(ctx, driverID)
	if err != nil {
		// The score itself is still answerable; degrade the lock view.
		s.logger.Warn("cooldown lock check failed",
			zap.Int64("driver_id", driverID),
			zap.Error(err))
		return status, nil
	}
	status.CooldownActive = held
	status.CooldownRemaining = remaining
	return status, nil
}

// ListDriverScores returns the state of every known driver, ordered by
// ascending average so the worst drivers surface first.
func (s *QueryService) ListDriverScores(ctx context.Context) ([]DriverScoreStatus, error) {
	states, err := s.scores.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	statuses := make([]DriverScoreStatus, 0, len(states))
	for _, state := range states {
		statuses = append(statuses, DriverScoreStatus{
			DriverID:    state.DriverID,
			Average:     state.Average,
			LastUpdated: state.LastUpdated,
			AlertActive: state.AlertActive,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Average != statuses[j].Average {
			return statuses[i].Average < statuses[j].Average
		}
		return statuses[i].DriverID < statuses[j].DriverID
	})
	return statuses, nil
}

// GetDriverHistory returns a driver's durable feedback records, newest
// first, with SQL-computed aggregate stats. limit <= 0 applies the default.
func (s *QueryService) GetDriverHistory(ctx context.Context, driverID int64, limit int) (DriverHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	stats, err := s.history.HistoryStats(dbCtx, driverID)
	if err != nil {
		return DriverHistory{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if stats.RecordCount == 0 {
		return DriverHistory{}, ErrDriverNotFound
	}

	records, err := s.history.ListByDriver(dbCtx, driverID, limit)
	if err != nil {
		return DriverHistory{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	entries := make([]FeedbackEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, FeedbackEntry{
			EventID:        r.EventID,
			Category:       r.Category,
			Text:           r.Text,
			SentimentValue: r.SentimentValue,
			RecordedAt:     r.RecordedAt,
		})
	}

	return DriverHistory{
		DriverID:     driverID,
		RecordCount:  stats.RecordCount,
		AverageValue: stats.AverageValue,
		Records:      entries,
	}, nil
}
