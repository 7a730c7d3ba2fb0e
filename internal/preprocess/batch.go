package preprocess

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/metrics"
)

var tracer = otel.Tracer("github.com/JakeFAU/adintel/internal/preprocess")

type task struct {
	index  int
	record ads.AdRecord
}

type outcome struct {
	index  int
	record ads.PreprocessedRecord
}

// PreprocessBatch runs PreprocessOne over records on a pool of
// Config.Concurrency workers. Results are returned in completion order, so
// callers that need input order should sort by AdID. The output always has
// the same length as records; a canceled ctx degrades OCR but every record is
// still emitted.
func (p *Preprocessor) PreprocessBatch(ctx context.Context, records []ads.AdRecord) []ads.PreprocessedRecord {
	ctx, span := tracer.Start(ctx, "preprocess.Batch")
	defer span.End()

	workers := min(p.cfg.Concurrency, max(len(records), 1))
	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("workers", workers),
	)
	p.logger.Info("starting batch preprocessing",
		zap.Int("records", len(records)),
		zap.Int("workers", workers),
	)

	tasks := make(chan task)
	outcomes := make(chan outcome, len(records))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for t := range tasks {
				outcomes <- outcome{index: t.index, record: p.PreprocessOne(ctx, t.record)}
			}
		}()
	}

	go func() {
		for i, rec := range records {
			tasks <- task{index: i, record: rec}
		}
		close(tasks)
		wg.Wait()
		close(outcomes)
	}()

	out := make([]ads.PreprocessedRecord, 0, len(records))
	failed := 0
	for o := range outcomes {
		if o.record.Failed() {
			failed++
			p.logger.Debug("batch item failed", zap.Int("index", o.index), zap.String("ad_id", o.record.AdID))
		}
		out = append(out, o.record)
	}

	span.SetAttributes(attribute.Int("failed", failed))
	p.logger.Info("batch preprocessing complete",
		zap.Int("total", len(out)),
		zap.Int("successful", len(out)-failed),
		zap.Int("failed", failed),
	)
	return out
}
