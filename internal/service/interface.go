package service

import (
	"context"
	"time"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"github.com/driverpulse/sentiment-server/internal/repository/models"
)

// ScoreReader exposes the live per-driver score state.
type ScoreReader interface {
	Get(ctx context.Context, driverID int64) (domain.DriverScoreState, bool, error)
	All(ctx context.Context) ([]domain.DriverScoreState, error)
}

// LockReader reports the presence and remaining TTL of a driver's alert
// cooldown lock.
type LockReader interface {
	Check(ctx context.Context, driverID int64) (bool, time.Duration, error)
}

// HistoryRepository reads the durable feedback record log.
type HistoryRepository interface {
	ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.FeedbackRecord, error)
	HistoryStats(ctx context.Context, driverID int64) (models.DriverHistoryStats, error)
}
