// Package domain holds the shared entities flowing through the feedback
// pipeline: inbound events, per-driver score state and alert payloads.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category identifies the target of a feedback event.
type Category string

const (
	CategoryDriver Category = "driver"
	CategoryTrip   Category = "trip"
	CategoryApp    Category = "app"
	CategoryOther  Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDriver, CategoryTrip, CategoryApp, CategoryOther:
		return true
	}
	return false
}

// FeedbackEvent is the immutable inbound message. EventID doubles as the
// idempotency key and is supplied by the caller.
type FeedbackEvent struct {
	EventID     string    `json:"event_id"`
	DriverID    int64     `json:"driver_id"`
	Category    Category  `json:"category"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

var (
	ErrMissingEventID   = errors.New("missing event_id")
	ErrInvalidDriverID  = errors.New("driver_id must be positive")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrEmptyText        = errors.New("text must not be empty")
	ErrMissingTimestamp = errors.New("missing submitted_at")
)

// Validate checks the required fields of an inbound event.
func (e FeedbackEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return ErrMissingEventID
	case e.DriverID <= 0:
		return ErrInvalidDriverID
	case !e.Category.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	case strings.TrimSpace(e.Text) == "":
		return ErrEmptyText
	case e.SubmittedAt.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// DriverScoreState is the only mutable shared entity: one running average per
// driver, created lazily on first feedback and never deleted.
type DriverScoreState struct {
	DriverID    int64     `json:"driver_id"`
	Average     float64   `json:"average"`
	LastUpdated time.Time `json:"last_updated"`
	AlertActive bool      `json:"alert_active"`
}

// Alert is emitted when a driver's average drops below the configured
// threshold outside an active cooldown window.
type Alert struct {
	DriverID  int64     `json:"driver_id"`
	Average   float64   `json:"average"`
	Threshold float64   `json:"threshold"`
	FiredAt   time.Time `json:"fired_at"`
}

// DeadLetter wraps an unprocessable message together with its error
// classification for the dead-letter channel.
type DeadLetter struct {
	Payload      []byte    `json:"payload"`
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}
