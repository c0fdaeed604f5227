// Package metrics exposes Prometheus collectors for the fetch engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_fetches_total",
			Help: "Total number of feed fetches, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reader_fetch_duration_seconds",
			Help:    "Histogram of feed fetch latencies.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_active_fetches",
			Help: "Number of fetches currently holding a global slot.",
		},
	)

	limiterWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reader_limiter_wait_seconds",
			Help:    "Time spent waiting for a concurrency slot, labeled by scope.",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"scope"},
	)

	itemsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reader_items_ingested_total",
			Help: "Total number of newly inserted items.",
		},
	)

	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_jobs_enqueued_total",
			Help: "Total number of fetch jobs enqueued, labeled by trigger.",
		},
		[]string{"trigger"},
	)
)

// ObserveFetch records one completed fetch attempt.
func ObserveFetch(outcome string, duration time.Duration) {
	fetchesTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// IncActiveFetches marks a fetch as holding a global slot.
func IncActiveFetches() {
	activeFetches.Inc()
}

// DecActiveFetches marks a global slot as released.
func DecActiveFetches() {
	activeFetches.Dec()
}

// ObserveLimiterWait records how long slot acquisition blocked.
func ObserveLimiterWait(scope string, duration time.Duration) {
	limiterWaitSeconds.WithLabelValues(scope).Observe(duration.Seconds())
}

// AddItemsIngested counts newly inserted items.
func AddItemsIngested(n int) {
	if n > 0 {
		itemsIngestedTotal.Add(float64(n))
	}
}

// IncJobsEnqueued counts one enqueued fetch job.
func IncJobsEnqueued(trigger string) {
	jobsEnqueuedTotal.WithLabelValues(trigger).Inc()
}
