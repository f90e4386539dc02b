package httpapi

import (
	"context"
	"time"

	"github.com/driverpulse/sentiment-server/internal/service"
)

// Cacher defines the cache operations used by the read-through helpers.
type Cacher interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// QueryService is the read surface the handlers expose.
type QueryService interface {
	GetDriverScore(ctx context.Context, driverID int64) (service.DriverScoreStatus, error)
	ListDriverScores(ctx context.Context) ([]service.DriverScoreStatus, error)
	GetDriverHistory(ctx context.Context, driverID int64, limit int) (service.DriverHistory, error)
}
