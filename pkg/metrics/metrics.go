// Package metrics exposes Prometheus instrumentation for the feedback
// pipeline and the query API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentiment"

type Manager struct {
	registry *prometheus.Registry

	eventsProcessed   prometheus.Counter
	eventsDuplicate   prometheus.Counter
	eventsDeadLetter  *prometheus.CounterVec
	eventsRetried     prometheus.Counter
	alertsFired       prometheus.Counter
	alertsSuppressed  prometheus.Counter
	processingLatency prometheus.Histogram
	scoringLatency    prometheus.Histogram

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var defaultManager = NewManager()

func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Manager{
		registry: reg,
		eventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Feedback events fully processed and acknowledged.",
		}),
		eventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Feedback events rejected by the idempotency guard.",
		}),
		eventsDeadLetter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dead_letter_total",
			Help:      "Feedback events routed to the dead-letter channel.",
		}, []string{"kind"}),
		eventsRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_retried_total",
			Help:      "Local retries of transiently failing pipeline steps.",
		}),
		alertsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Driver score alerts emitted.",
		}),
		alertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Sub-threshold updates suppressed by the cooldown lock.",
		}),
		processingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_seconds",
			Help:      "End-to-end latency of one feedback event.",
			Buckets:   prometheus.DefBuckets,
		}),
		scoringLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_seconds",
			Help:      "Latency of the sentiment scoring stage.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(defaultManager.registry, promhttp.HandlerOpts{})
}

func RecordEventProcessed()            { defaultManager.eventsProcessed.Inc() }
func RecordEventDuplicate()            { defaultManager.eventsDuplicate.Inc() }
func RecordEventRetried()              { defaultManager.eventsRetried.Inc() }
func RecordAlertFired()                { defaultManager.alertsFired.Inc() }
func RecordAlertSuppressed()           { defaultManager.alertsSuppressed.Inc() }
func RecordProcessingSeconds(s float64) { defaultManager.processingLatency.Observe(s) }
func RecordScoringSeconds(s float64)    { defaultManager.scoringLatency.Observe(s) }

func RecordEventDeadLettered(kind string) {
	defaultManager.eventsDeadLetter.WithLabelValues(kind).Inc()
}

func RecordHTTPRequest(endpoint, code string) {
	defaultManager.httpRequests.WithLabelValues(endpoint, code).Inc()
}

func RecordHTTPDuration(endpoint string, s float64) {
	defaultManager.httpRequestDuration.WithLabelValues(endpoint).Observe(s)
}
