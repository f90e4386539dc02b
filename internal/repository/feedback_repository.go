package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/driverpulse/sentiment-server/internal/repository/models"
)

// ErrDuplicateRecord is returned when a record with the same event_id was
// already appended. Upstream treats it as an idempotent success.
var ErrDuplicateRecord = errors.New("feedback record already exists")

type FeedbackRecordRepository struct {
	db *sql.DB
}

func NewFeedbackRecordRepository(db *sql.DB) *FeedbackRecordRepository {
	return &FeedbackRecordRepository{db: db}
}

// Migrate creates the feedback_records table and its read index.
func (r *FeedbackRecordRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS feedback_records (
		event_id        TEXT PRIMARY KEY,
		driver_id       INTEGER NOT NULL,
		category        TEXT NOT NULL,
		text            TEXT NOT NULL,
		sentiment_value REAL NOT NULL,
		recorded_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_records_driver_recorded
		ON feedback_records (driver_id, recorded_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate feedback_records: %w", err)
	}
	return nil
}

// Insert appends one record. The table is append-only: a unique constraint
// violation on event_id maps to ErrDuplicateRecord, every other failure is
// surfaced to the caller.
func (r *FeedbackRecordRepository) Insert(ctx context.Context, rec models.FeedbackRecord) error {
	const query = `
		INSERT INTO feedback_records (event_id, driver_id, category, text, sentiment_value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.EventID,
		rec.DriverID,
		rec.Category,
		rec.Text,
		rec.SentimentValue,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.EventID)
		}
		return fmt.Errorf("insert feedback record: %w", err)
	}
	return nil
}

// Exists reports whether a record for eventID was already appended.
func (r *FeedbackRecordRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM feedback_records WHERE event_id = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query Exists: %w", err)
	}
	return exists, nil
}

// ListByDriver returns a driver's records ordered newest first. limit <= 0
// means no limit.
func (r *FeedbackRecordRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.FeedbackRecord, error) {
	query := `
		SELECT event_id, driver_id, category, text, sentiment_value, recorded_at
		FROM feedback_records
		WHERE driver_id = ?
		ORDER BY recorded_at DESC
	`
	args := []any{driverID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ListByDriver: %w", err)
	}
	defer rows.Close()

	var results []models.FeedbackRecord
	for rows.Next() {
		var rec models.FeedbackRecord
		var recordedAt string
		if err := rows.Scan(&rec.EventID, &rec.DriverID, &rec.Category, &rec.Text, &rec.SentimentValue, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan ListByDriver row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}
		rec.RecordedAt = ts
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListByDriver: %w", err)
	}
	return results, nil
}

// HistoryStats aggregates a driver's record count and mean sentiment value
// entirely in SQL.
func (r *FeedbackRecordRepository) HistoryStats(ctx context.Context, driverID int64) (models.DriverHistoryStats, error) {
	const query = `
		SELECT COUNT(event_id), COALESCE(AVG(sentiment_value), 0)
		FROM feedback_records
		WHERE driver_id = ?
	`
	stats := models.DriverHistoryStats{DriverID: driverID}
	err := r.db.QueryRowContext(ctx, query, driverID).Scan(&stats.RecordCount, &stats.AverageValue)
	if err != nil {
		return models.DriverHistoryStats{}, fmt.Errorf("query HistoryStats: %w", err)
	}
	return stats, nil
}

// isUniqueViolation detects a sqlite UNIQUE constraint failure without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
