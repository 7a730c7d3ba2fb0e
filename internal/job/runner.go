// Package job runs one end-to-end collection job: collect from a source,
// preprocess the records, then hand them to a sink.
package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/metrics"
	"github.com/JakeFAU/adintel/internal/preprocess"
	"github.com/JakeFAU/adintel/internal/progress"
)

// Job statuses reported in Result.Status and the jobs metric.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// AdapterFactory builds the source adapter for a validated job.
type AdapterFactory func(job ads.CollectionConfig) (collector.SourceAdapter, error)

// Result summarizes one job run.
type Result struct {
	JobID      string
	Status     string
	Collection collector.Result
	Records    []ads.PreprocessedRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed counts the records whose preprocessing failed.
func (r Result) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Failed() {
			n++
		}
	}
	return n
}

// Runner wires the pipeline stages together.
type Runner struct {
	adapters     AdapterFactory
	orchestrator *collector.Orchestrator
	preprocessor *preprocess.Preprocessor
	sink         ads.RecordSink
	ids          ads.IDGenerator
	clock        ads.Clock
	logger       *zap.Logger
	progress     progress.Emitter
}

// New constructs a Runner. A nil sink keeps the records in the Result only.
func New(
	adapters AdapterFactory,
	orchestrator *collector.Orchestrator,
	preprocessor *preprocess.Preprocessor,
	sink ads.RecordSink,
	ids ads.IDGenerator,
	clock ads.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		adapters:     adapters,
		orchestrator: orchestrator,
		preprocessor: preprocessor,
		sink:         sink,
		ids:          ids,
		clock:        clock,
		logger:       logger,
		progress:     progress.Nop{},
	}
}

// WithProgress routes job milestones to e.
func (r *Runner) WithProgress(e progress.Emitter) *Runner {
	if e != nil {
		r.progress = e
	}
	return r
}

// Run executes cfg. The config is validated before any adapter is built.
// Records come back in collection order.
func (r *Runner) Run(ctx context.Context, cfg ads.CollectionConfig) (res Result, err error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		metrics.ObserveJob(StatusFailed)
		return Result{}, err
	}

	jobID, err := r.ids.NewID()
	if err != nil {
		metrics.ObserveJob(StatusFailed)
		return Result{}, fmt.Errorf("create job id: %w", err)
	}
	res = Result{JobID: jobID, StartedAt: r.clock.Now()}
	logger := r.logger.With(zap.String("job_id", jobID), zap.String("platform", cfg.Platform))
	r.emit(progress.Event{JobID: jobID, TS: res.StartedAt, Stage: progress.StageJobStart, Platform: cfg.Platform})
	defer func() {
		res.FinishedAt = r.clock.Now()
		done := progress.Event{
			JobID:    jobID,
			TS:       res.FinishedAt,
			Stage:    progress.StageJobDone,
			Platform: cfg.Platform,
			Records:  len(res.Records),
			Dur:      res.FinishedAt.Sub(res.StartedAt),
			Note:     res.Status,
		}
		if err != nil {
			res.Status = StatusFailed
			done.Stage = progress.StageJobError
			done.Note = err.Error()
		}
		r.emit(done)
		metrics.ObserveJob(res.Status)
		logger.Info("job finished",
			zap.String("status", res.Status),
			zap.Int("records", len(res.Records)),
			zap.Int("preprocess_failures", res.Failed()),
			zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
		)
	}()

	adapter, err := r.adapters(cfg)
	if err != nil {
		return res, fmt.Errorf("build adapter: %w", err)
	}
	if closer, ok := adapter.(collector.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				logger.Warn("close adapter", zap.Error(closeErr))
			}
		}()
	}

	logger.Info("collecting", zap.Strings("keywords", cfg.Keywords), zap.Int("max_results", cfg.MaxResults))
	res.Collection, err = r.orchestrator.Run(ctx, adapter, cfg)
	if err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}
	for _, warning := range res.Collection.Warnings {
		logger.Warn("collection warning", zap.String("warning", warning))
	}
	r.emitCollection(jobID, res.Collection)

	res.Records = r.preprocessor.PreprocessBatch(ctx, res.Collection.Records)
	sortByCollectionOrder(res.Records, res.Collection.Records)
	for _, rec := range res.Records {
		r.emit(progress.Event{
			JobID:    jobID,
			TS:       r.clock.Now(),
			Stage:    progress.StageRecordDone,
			Platform: rec.Platform,
			AdID:     rec.AdID,
			Status:   string(rec.Quality.PreprocessingStatus),
			Dur:      time.Duration(rec.Quality.ProcessingDurationMS) * time.Millisecond,
		})
	}

	if r.sink != nil {
		if err := r.sink.WriteRecords(ctx, jobID, res.Records); err != nil {
			return res, fmt.Errorf("write records: %w", err)
		}
	}

	res.Status = status(res)
	return res, nil
}

func (r *Runner) emit(evt progress.Event) {
	r.progress.Emit(evt)
}

func (r *Runner) emitCollection(jobID string, col collector.Result) {
	now := r.clock.Now()
	for _, kerr := range col.KeywordErrors {
		r.emit(progress.Event{
			JobID:    jobID,
			TS:       now,
			Stage:    progress.StageKeywordError,
			Platform: col.Platform,
			Keyword:  kerr.Keyword,
			Note:     kerr.Err.Error(),
		})
	}
	for _, skipped := range col.Skipped {
		r.emit(progress.Event{
			JobID:    jobID,
			TS:       now,
			Stage:    progress.StageItemSkipped,
			Platform: col.Platform,
			Keyword:  skipped.Keyword,
			Note:     skipped.Err.Error(),
		})
	}
}

func status(res Result) string {
	switch res.Collection.Status() {
	case StatusFailed:
		return StatusFailed
	case StatusPartial:
		return StatusPartial
	}
	if res.Failed() > 0 {
		return StatusPartial
	}
	return StatusSuccess
}

// sortByCollectionOrder reorders out to follow the ad ids of in. Records
// sharing an id keep their relative order.
func sortByCollectionOrder(out []ads.PreprocessedRecord, in []ads.AdRecord) {
	position := make(map[string]int, len(in))
	for i, rec := range in {
		if _, ok := position[rec.AdID]; !ok {
			position[rec.AdID] = i
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return position[out[i].AdID] < position[out[j].AdID]
	})
}

// IsInvalidConfig reports whether err came from job validation.
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ads.ErrInvalidConfig)
}
