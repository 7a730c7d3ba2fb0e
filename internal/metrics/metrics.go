// Package metrics exposes Prometheus collectors for the collection and
// preprocessing pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectedRecordsTotal      *prometheus.CounterVec
	fetchPagesTotal            *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	preprocessedRecordsTotal   *prometheus.CounterVec
	preprocessDurationSeconds  prometheus.Histogram
	ocrAttemptsTotal           *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	jobsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_collected_records_total",
				Help: "Raw items seen by collectors, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_fetch_pages_total",
				Help: "Source pages fetched, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_fetch_retries_total",
				Help: "Retries issued after transient fetch failures.",
			},
			[]string{"platform"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adintel_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform"},
		)

		preprocessedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_preprocessed_records_total",
				Help: "Records preprocessed, labeled by status.",
			},
			[]string{"status"},
		)

		preprocessDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adintel_preprocess_duration_seconds",
				Help:    "Per-record preprocessing latency.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		ocrAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_ocr_attempts_total",
				Help: "OCR attempts, labeled by engine and outcome.",
			},
			[]string{"engine", "outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "adintel_active_workers",
				Help: "Number of workers currently preprocessing a record.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adintel_jobs_total",
				Help: "Collection jobs run, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveCollected counts a raw item by whether it normalized or was skipped.
func ObserveCollected(platform, outcome string) {
	Init()
	collectedRecordsTotal.WithLabelValues(platform, outcome).Inc()
}

// ObserveFetch counts a fetched source page.
func ObserveFetch(platform, status string) {
	Init()
	fetchPagesTotal.WithLabelValues(platform, status).Inc()
}

// ObserveRetry counts a retry triggered by a transient failure.
func ObserveRetry(platform string) {
	Init()
	fetchRetriesTotal.WithLabelValues(platform).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(platform string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObservePreprocessed records the outcome and latency of one record.
func ObservePreprocessed(status string, duration time.Duration) {
	Init()
	preprocessedRecordsTotal.WithLabelValues(status).Inc()
	preprocessDurationSeconds.Observe(duration.Seconds())
}

// ObserveOCR counts an OCR attempt for the given engine.
func ObserveOCR(engine, outcome string) {
	Init()
	ocrAttemptsTotal.WithLabelValues(engine, outcome).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
