// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Ingest tracks ingestion runs by strategy.
type Ingest struct {
	total         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	imageFailures prometheus.Counter
}

// NewIngest registers the ingestion metrics with reg.
func NewIngest(reg prometheus.Registerer) *Ingest {
	f := promauto.With(reg)
	return &Ingest{
		total: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recipebox",
			Name:      "ingestions_total",
			Help:      "Recipe ingestions by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recipebox",
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of recipe ingestions by strategy.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 45},
		}, []string{"strategy"}),
		imageFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recipebox",
			Name:      "image_fetch_failures_total",
			Help:      "Remote recipe images that could not be fetched.",
		}),
	}
}

// Observe records one finished ingestion. A nil receiver is a no-op.
func (m *Ingest) Observe(strategy string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.total.WithLabelValues(strategy, outcome).Inc()
	m.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ImageFetchFailed counts a degraded ingestion.
func (m *Ingest) ImageFetchFailed() {
	if m == nil {
		return
	}
	m.imageFailures.Inc()
}
