package ingest

import (
	"errors"

	"github.com/driverpulse/sentiment-server/internal/aggregate"
	"github.com/driverpulse/sentiment-server/internal/alert"
	"github.com/driverpulse/sentiment-server/internal/idempotency"
)

// Error kinds attached to dead-lettered messages.
const (
	KindValidation = "validation_error"
	KindTransient  = "transient_dependency"
	KindInvariant  = "invariant_violation"
	KindStorage    = "storage_error"
	KindUnknown    = "unknown_error"
)

// ErrMalformedPayload wraps JSON decode failures of inbound messages.
var ErrMalformedPayload = errors.New("malformed payload")

// isTransient reports whether err is worth retrying locally and, failing
// that, leaving to upstream redelivery. Validation and invariant failures
// are permanent by definition.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, aggregate.ErrInvariantViolation):
		return false
	}
	return true
}

// classifyKind maps a pipeline error to its dead-letter classification.
func classifyKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return KindValidation
	case errors.Is(err, aggregate.ErrInvariantViolation):
		return KindInvariant
	case errors.Is(err, aggregate.ErrStoreFailure),
		errors.Is(err, idempotency.ErrMarkerStoreFailure),
		errors.Is(err, alert.ErrLockStoreFailure):
		return KindTransient
	case err != nil:
		return KindStorage
	default:
		return KindUnknown
	}
}
