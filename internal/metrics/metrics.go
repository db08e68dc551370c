// Package metrics provides Prometheus metrics for the gazetteer pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsFetched tracks observations pulled from source adapters
	ObservationsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "ingest",
			Name:      "observations_fetched_total",
			Help:      "Total number of observations fetched from source adapters",
		},
		[]string{"source"},
	)

	// FetchRetries tracks adapter fetch retries
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "ingest",
			Name:      "fetch_retries_total",
			Help:      "Total number of source adapter fetch retries",
		},
		[]string{"source"},
	)

	// ChangesDetected tracks detected changes by kind
	ChangesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "detect",
			Name:      "changes_total",
			Help:      "Total number of detected changes by kind",
		},
		[]string{"source", "kind"},
	)

	// ObservationsDropped tracks observations dropped as unscorable
	ObservationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "scoring",
			Name:      "observations_dropped_total",
			Help:      "Total number of observations dropped as unscorable",
		},
		[]string{"source"},
	)

	// ResolutionsTotal tracks resolver dispositions
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "resolve",
			Name:      "outcomes_total",
			Help:      "Total number of resolver outcomes by disposition",
		},
		[]string{"disposition"},
	)

	// CommitsTotal tracks store commits by result
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gazetteer",
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Total number of version commits by result",
		},
		[]string{"result"},
	)

	// ReviewQueueDepth tracks pending review items
	ReviewQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gazetteer",
			Subsystem: "review",
			Name:      "queue_depth",
			Help:      "Number of items pending review",
		},
	)

	// RunDuration tracks ingestion run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gazetteer",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source", "status"},
	)
)

// RecordRun records a completed ingestion run
func RecordRun(source, status string, durationSeconds float64) {
	RunDuration.WithLabelValues(source, status).Observe(durationSeconds)
}

// RecordResolution records a resolver outcome
func RecordResolution(disposition string) {
	ResolutionsTotal.WithLabelValues(disposition).Inc()
}

// RecordCommit records a store commit result
func RecordCommit(result string) {
	CommitsTotal.WithLabelValues(result).Inc()
}
