package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/adintel/internal/progress"
)

// resultError labels jobs that ended with JOB_ERROR.
const resultError = "error"

// PrometheusSink exports job progress as Prometheus collectors.
type PrometheusSink struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	running   prometheus.Gauge
	runtime   *prometheus.HistogramVec
	yield     *prometheus.HistogramVec

	keywordErrors *prometheus.CounterVec
	itemsSkipped  *prometheus.CounterVec
	records       *prometheus.CounterVec

	mu   sync.Mutex
	open map[string]time.Time
}

// NewPrometheusSink registers the collectors against reg, falling back to the
// default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adintel_progress_jobs_started_total",
			Help: "Jobs that have started, per platform.",
		}, []string{"platform"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adintel_progress_jobs_completed_total",
			Help: "Jobs finished, per platform and result (success, partial, failed or error).",
		}, []string{"platform", "result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adintel_progress_jobs_running",
			Help: "Jobs started but not yet finished.",
		}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adintel_progress_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		yield: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adintel_progress_job_records",
			Help:    "Records written per successful or partial job.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}, []string{"platform"}),
		keywordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adintel_progress_keyword_errors_total",
			Help: "Keywords whose collection failed, per platform.",
		}, []string{"platform"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adintel_progress_items_skipped_total",
			Help: "Raw items dropped during normalization, per platform.",
		}, []string{"platform"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adintel_progress_records_total",
			Help: "Preprocessed records, per platform and preprocessing status.",
		}, []string{"platform", "status"}),
		open: make(map[string]time.Time),
	}
	collectors := []prometheus.Collector{
		s.started, s.completed, s.running, s.runtime, s.yield,
		s.keywordErrors, s.itemsSkipped, s.records,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		platform := labelOrUnknown(evt.Platform)
		switch evt.Stage {
		case progress.StageJobStart:
			s.started.WithLabelValues(platform).Inc()
			if s.begin(evt) {
				s.running.Inc()
			}
		case progress.StageJobDone:
			result := labelOrUnknown(evt.Note)
			s.finish(evt, platform, result)
			s.yield.WithLabelValues(platform).Observe(float64(evt.Records))
		case progress.StageJobError:
			s.finish(evt, platform, resultError)
		case progress.StageKeywordError:
			s.keywordErrors.WithLabelValues(platform).Inc()
		case progress.StageItemSkipped:
			s.itemsSkipped.WithLabelValues(platform).Inc()
		case progress.StageRecordDone:
			s.records.WithLabelValues(platform, evt.Status).Inc()
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// begin reports whether evt opened a job that was not already running.
func (s *PrometheusSink) begin(evt progress.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[evt.JobID]; ok {
		return false
	}
	s.open[evt.JobID] = evt.TS
	return true
}

func (s *PrometheusSink) finish(evt progress.Event, platform, result string) {
	s.completed.WithLabelValues(platform, result).Inc()

	s.mu.Lock()
	startedAt, ok := s.open[evt.JobID]
	delete(s.open, evt.JobID)
	s.mu.Unlock()

	if ok {
		s.running.Dec()
	}
	dur := evt.Dur
	if dur <= 0 && ok {
		dur = evt.TS.Sub(startedAt)
	}
	if dur > 0 {
		s.runtime.WithLabelValues(result).Observe(dur.Seconds())
	}
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
