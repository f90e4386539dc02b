package models

import "time"

// FeedbackRecord is one durable, append-only row per successfully processed
// feedback event. Rows are never updated or deleted; this table is the
// system of record for historical analytics.
type FeedbackRecord struct {
	EventID        string
	DriverID       int64
	Category       string
	Text           string
	SentimentValue float64
	RecordedAt     time.Time
}

// DriverHistoryStats summarizes a driver's durable feedback history.
type DriverHistoryStats struct {
	DriverID     int64
	RecordCount  int64
	AverageValue float64
}
