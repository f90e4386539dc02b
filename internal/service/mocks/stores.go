package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/driverpulse/sentiment-server/internal/repository/models"
)

// MockScoreReader is a mock implementation of the ScoreReader interface for
// testing the query layer.
type MockScoreReader struct {
	GetFunc func(ctx context.Context, driverID int64) (domain.DriverScoreState, bool, error)
	AllFunc func(ctx context.Context) ([]domain.DriverScoreState, error)
}

// Get implements the ScoreReader interface
func (m *MockScoreReader) Get(ctx context.Context, driverID int64) (domain.DriverScoreState, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, driverID)
	}
	return domain.DriverScoreState{}, false, errors.New("GetFunc not implemented")
}

// All implements the ScoreReader interface
func (m *MockScoreReader) All(ctx context.Context) ([]domain.DriverScoreState, error) {
	if m.AllFunc != nil {
		return m.AllFunc(ctx)
	}
	return nil, errors.New("AllFunc not implemented")
}

// MockLockReader is a mock implementation of the LockReader interface.
type MockLockReader struct {
	CheckFunc func(ctx context.Context, driverID int64) (bool, time.Duration, error)
}

// Check implements the LockReader interface
func (m *MockLockReader) Check(ctx context.Context, driverID int64) (bool, time.Duration, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, driverID)
	}
	return false, 0, errors.New("CheckFunc not implemented")
}

// MockHistoryRepository is a mock implementation of the HistoryRepository
// interface.
type MockHistoryRepository struct {
	ListByDriverFunc func(ctx context.Context, driverID int64, limit int) ([]models.FeedbackRecord, error)
	HistoryStatsFunc func(ctx context.Context, driverID int64) (models.DriverHistoryStats, error)
}

// ListByDriver implements the HistoryRepository interface
func (m *MockHistoryRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.FeedbackRecord, error) {
	if m.ListByDriverFunc != nil {
		return m.ListByDriverFunc(ctx, driverID, limit)
	}
	return nil, errors.New("ListByDriverFunc not implemented")
}

// HistoryStats implements the HistoryRepository interface
func (m *MockHistoryRepository) HistoryStats(ctx context.Context, driverID int64) (models.DriverHistoryStats, error) {
	if m.HistoryStatsFunc != nil {
		return m.HistoryStatsFunc(ctx, driverID)
	}
	return models.DriverHistoryStats{}, errors.New("HistoryStatsFunc not implemented")
}
