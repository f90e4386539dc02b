package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/driverpulse/sentiment-server/internal/repository/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *FeedbackRecordRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewFeedbackRecordRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func record(eventID string, driverID int64, value float64, at time.Time) models.FeedbackRecord {
	return models.FeedbackRecord{
		EventID:        eventID,
		DriverID:       driverID,
		Category:       "driver",
		Text:           "some feedback",
		SentimentValue: value,
		RecordedAt:     at,
	}
}

func TestInsertAndListByDriver(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, record("evt-1", 7, 2.0, base)))
	require.NoError(t, repo.Insert(ctx, record("evt-2", 7, -1.0, base.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, record("evt-3", 7, 0.5, base.Add(2*time.Hour))))
	require.NoError(t, repo.Insert(ctx, record("evt-4", 8, -3.0, base)))

	t.Run("newest first", func(t *testing.T) {
		records, err := repo.ListByDriver(ctx, 7, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "evt-3", records[0].EventID)
		assert.Equal(t, "evt-2", records[1].EventID)
		assert.Equal(t, "evt-1", records[2].EventID)
		assert.Equal(t, base.Add(2*time.Hour), records[0].RecordedAt)
	})

	t.Run("limit applies", func(t *testing.T) {
		records, err := repo.ListByDriver(ctx, 7, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "evt-3", records[0].EventID)
	})

	t.Run("other drivers excluded", func(t *testing.T) {
		records, err := repo.ListByDriver(ctx, 8, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "evt-4", records[0].EventID)
	})

	t.Run("unknown driver is empty", func(t *testing.T) {
		records, err := repo.ListByDriver(ctx, 404, 0)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestInsertDuplicateEventID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, record("evt-1", 7, 2.0, at)))

	err := repo.Insert(ctx, record("evt-1", 7, 2.0, at))
	assert.ErrorIs(t, err, ErrDuplicateRecord)

	// the original row is untouched
	records, err := repo.ListByDriver(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	exists, err := repo.Exists(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Insert(ctx, record("evt-1", 7, 2.0, at)))

	exists, err = repo.Exists(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHistoryStats(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty driver", func(t *testing.T) {
		stats, err := repo.HistoryStats(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.RecordCount)
		assert.Equal(t, 0.0, stats.AverageValue)
	})

	t.Run("count and mean computed in sql", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, record("evt-1", 7, 2.0, base)))
		require.NoError(t, repo.Insert(ctx, record("evt-2", 7, -1.0, base.Add(time.Hour))))
		require.NoError(t, repo.Insert(ctx, record("evt-3", 7, 0.0, base.Add(2*time.Hour))))

		stats, err := repo.HistoryStats(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), stats.DriverID)
		assert.Equal(t, int64(3), stats.RecordCount)
		assert.InDelta(t, 1.0/3.0, stats.AverageValue, 1e-9)
	})
}

func TestRecordedAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	require.NoError(t, repo.Insert(ctx, record("evt-1", 7, 1.5, at)))

	records, err := repo.ListByDriver(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].RecordedAt.Equal(at))
	assert.Equal(t, 1.5, records[0].SentimentValue)
}
