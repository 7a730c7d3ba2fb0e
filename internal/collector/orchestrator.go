package collector

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/metrics"
)

var tracer = otel.Tracer("github.com/JakeFAU/adintel/internal/collector")

// ErrNormalize wraps failures raised while mapping a raw item.
var ErrNormalize = errors.New("normalize raw item")

// ItemError records a raw item that was skipped because it could not be
// normalized.
type ItemError struct {
	Keyword string
	Index   int
	Err     error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("keyword %q item %d: %v", e.Keyword, e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// KeywordError records a keyword whose pagination was abandoned after a fetch
// failure. Records collected for the keyword before the failure are kept.
type KeywordError struct {
	Keyword string
	Err     error
}

func (e KeywordError) Error() string {
	return fmt.Sprintf("keyword %q: %v", e.Keyword, e.Err)
}

func (e KeywordError) Unwrap() error { return e.Err }

// Result is the outcome of one collection job.
type Result struct {
	Platform      string
	Records       []ads.AdRecord
	Skipped       []ItemError
	KeywordErrors []KeywordError
	Warnings      []string
}

// Status summarizes the job for logs and metrics.
func (r Result) Status() string {
	switch {
	case len(r.Records) == 0 && len(r.KeywordErrors) > 0:
		return "failed"
	case len(r.Skipped) > 0 || len(r.KeywordErrors) > 0:
		return "partial"
	default:
		return "success"
	}
}

// Orchestrator runs collection jobs.
type Orchestrator struct {
	logger *zap.Logger
	clock  ads.Clock
}

// New constructs an Orchestrator.
func New(logger *zap.Logger, clock ads.Clock) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{logger: logger, clock: clock}
}

// Run validates cfg, then walks every keyword sequentially, following cursors
// until the source runs dry or MaxResults raw items have been accumulated
// across the whole job. The accumulated items are truncated to the cap in
// fetch order and normalized one by one. Items that fail to normalize are
// skipped and reported; a fetch failure abandons only the current keyword.
// The returned error is non-nil for an invalid config or when ctx ends the
// job early.
func (o *Orchestrator) Run(ctx context.Context, adapter SourceAdapter, cfg ads.CollectionConfig) (Result, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "collector.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", adapter.Platform()),
		attribute.Int("keywords", len(cfg.Keywords)),
		attribute.Int("max_results", cfg.MaxResults),
	)

	result := Result{Platform: adapter.Platform()}
	logger := o.logger.With(zap.String("platform", adapter.Platform()))

	var accumulated []RawItem
	for _, keyword := range cfg.Keywords {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return o.finish(adapter, result), fmt.Errorf("collection interrupted: %w", err)
		}
		before := len(accumulated)
		var err error
		accumulated, err = o.collectKeyword(ctx, adapter, cfg, keyword, accumulated)
		fetched := len(accumulated) - before
		if err != nil {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, err.Error())
				return o.finish(adapter, result), fmt.Errorf("collection interrupted: %w", ctx.Err())
			}
			result.KeywordErrors = append(result.KeywordErrors, KeywordError{Keyword: keyword, Err: err})
			logger.Error("keyword collection aborted",
				zap.String("keyword", keyword),
				zap.Int("fetched", fetched),
				zap.Error(err),
			)
		} else {
			logger.Info("keyword collected", zap.String("keyword", keyword), zap.Int("fetched", fetched))
		}
		if len(accumulated) >= cfg.MaxResults {
			break
		}
	}
	if len(accumulated) > cfg.MaxResults {
		accumulated = accumulated[:cfg.MaxResults]
	}

	for index, item := range accumulated {
		record, err := o.normalize(adapter, item, cfg)
		if err != nil {
			metrics.ObserveCollected(adapter.Platform(), "skipped")
			result.Skipped = append(result.Skipped, ItemError{Keyword: item.Keyword, Index: index, Err: err})
			logger.Warn("skipping raw item",
				zap.String("keyword", item.Keyword),
				zap.Int("index", index),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveCollected(adapter.Platform(), "normalized")
		result.Records = append(result.Records, record)
	}

	result = o.finish(adapter, result)
	span.SetAttributes(
		attribute.Int("records", len(result.Records)),
		attribute.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// collectKeyword appends the raw items for one keyword to acc and returns it.
// Items gathered before a fetch failure are kept.
func (o *Orchestrator) collectKeyword(
	ctx context.Context,
	adapter SourceAdapter,
	cfg ads.CollectionConfig,
	keyword string,
	acc []RawItem,
) ([]RawItem, error) {
	cursor := ""
	seen := map[string]struct{}{}

	for {
		page, err := adapter.FetchRawItems(ctx, keyword, cursor)
		if err != nil {
			metrics.ObserveFetch(adapter.Platform(), "error")
			return acc, fmt.Errorf("fetch page: %w", err)
		}
		metrics.ObserveFetch(adapter.Platform(), "ok")
		if len(page.Items) == 0 {
			return acc, nil
		}

		for _, item := range page.Items {
			if item.Keyword == "" {
				item.Keyword = keyword
			}
			if item.Retries == 0 {
				item.Retries = page.Retries
			}
			acc = append(acc, item)
		}

		if len(acc) >= cfg.MaxResults || page.Next == "" {
			return acc, nil
		}
		if _, dup := seen[page.Next]; dup {
			o.logger.Warn("source repeated a pagination cursor",
				zap.String("platform", adapter.Platform()),
				zap.String("keyword", keyword),
			)
			return acc, nil
		}
		seen[page.Next] = struct{}{}
		cursor = page.Next
	}
}

func (o *Orchestrator) normalize(
	adapter SourceAdapter,
	item RawItem,
	cfg ads.CollectionConfig,
) (record ads.AdRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrNormalize, r)
		}
	}()

	record, err = adapter.Normalize(item)
	if err != nil {
		return ads.AdRecord{}, fmt.Errorf("%w: %w", ErrNormalize, err)
	}
	if record.CollectedAt.IsZero() && o.clock != nil {
		record.CollectedAt = o.clock.Now().UTC()
	}
	if len(record.RawData) == 0 {
		record.RawData = item.Payload
	}
	if record.DetectedKeywords == nil {
		record.DetectedKeywords = append([]string(nil), cfg.Keywords...)
	}
	if record.MatchedKeyword == nil {
		record.MatchedKeyword = ads.OptString(item.Keyword)
	}
	record.RetryCount = max(record.RetryCount, item.Retries)
	record.Finalize()
	if err := record.Validate(); err != nil {
		return ads.AdRecord{}, fmt.Errorf("%w: %w", ErrNormalize, err)
	}
	return record, nil
}

func (o *Orchestrator) finish(adapter SourceAdapter, result Result) Result {
	if w, ok := adapter.(Warner); ok {
		result.Warnings = append(result.Warnings, w.Warnings()...)
	}
	return result
}
