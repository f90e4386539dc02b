package service

import "time"

// DriverScoreStatus is the dashboard-facing view of one driver: the live
// running average plus the cooldown lock state.
type DriverScoreStatus struct {
	DriverID          int64         `json:"driver_id"`
	Average           float64       `json:"average"`
	LastUpdated       time.Time     `json:"last_updated"`
	AlertActive       bool          `json:"alert_active"`
	CooldownActive    bool          `json:"cooldown_active"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ns"`
}

// FeedbackEntry is one durable feedback record in a driver's history.
type FeedbackEntry struct {
	EventID        string    `json:"event_id"`
	Category       string    `json:"category"`
	Text           string    `json:"text"`
	SentimentValue float64   `json:"sentiment_value"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// DriverHistory bundles a driver's record log with its aggregate stats.
type DriverHistory struct {
	DriverID     int64           `json:"driver_id"`
	RecordCount  int64           `json:"record_count"`
	AverageValue float64         `json:"average_sentiment_value"`
	Records      []FeedbackEntry `json:"records"`
}
