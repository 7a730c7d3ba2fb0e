// Package ocr extracts text from ad images with a primary recognizer and an
// optional fallback.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/metrics"
)

var (
	// ErrImageFetch is reported when an image cannot be downloaded or decoded.
	ErrImageFetch = errors.New("fetch image")
	// ErrEngineUnavailable is reported when a recognizer is not installed or
	// not configured.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)

// DefaultBatchWorkers is the pool width used by ExtractBatch.
const DefaultBatchWorkers = 4

// Result is the outcome of one recognition. Confidence is within [0, 1].
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

func failed(engine string, err error) Result {
	return Result{Engine: engine, Error: err.Error()}
}

// Recognizer reads text from a preprocessed image. Failures are reported in
// the Result, never as a panic or error return.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, img *image.Gray) Result
}

// ImageSource loads the image behind a URL.
type ImageSource interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// Engine runs the fetch, preprocess, recognize, fallback sequence.
type Engine struct {
	source   ImageSource
	primary  Recognizer
	fallback Recognizer
	logger   *zap.Logger
}

// New builds an Engine. A nil fallback disables the fallback step.
func New(source ImageSource, primary, fallback Recognizer, logger *zap.Logger) (*Engine, error) {
	if source == nil {
		return nil, errors.New("ocr: image source is required")
	}
	if primary == nil {
		return nil, errors.New("ocr: primary recognizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, primary: primary, fallback: fallback, logger: logger}, nil
}

// Extract reads the text in the image at url. It never fails: download and
// recognition problems come back as an unsuccessful Result. An image with no
// text is a successful Result with empty text and does not reach the
// fallback.
func (e *Engine) Extract(ctx context.Context, url string) Result {
	img, err := e.source.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveOCR(e.primary.Name(), "fetch_error")
		e.logger.Warn("image unavailable for ocr", zap.String("url", url), zap.Error(err))
		return failed(e.primary.Name(), fmt.Errorf("%w: %w", ErrImageFetch, err))
	}
	gray := Preprocess(img)

	res := e.recognize(ctx, e.primary, gray)
	if res.Success || e.fallback == nil {
		return res
	}
	e.logger.Debug("primary ocr failed, trying fallback",
		zap.String("url", url),
		zap.String("primary", e.primary.Name()),
		zap.String("fallback", e.fallback.Name()),
		zap.String("error", res.Error),
	)
	return e.recognize(ctx, e.fallback, gray)
}

func (e *Engine) recognize(ctx context.Context, r Recognizer, gray *image.Gray) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			metrics.ObserveOCR(r.Name(), "panic")
			res = failed(r.Name(), fmt.Errorf("recognizer panic: %v", p))
		}
	}()
	res = r.Recognize(ctx, gray)
	if res.Engine == "" {
		res.Engine = r.Name()
	}
	outcome := "failure"
	switch {
	case res.Success && res.Text == "":
		outcome = "empty"
	case res.Success:
		outcome = "success"
	}
	metrics.ObserveOCR(r.Name(), outcome)
	return res
}

// ExtractBatch runs Extract over urls with at most workers in flight. The
// results line up with urls.
func (e *Engine) ExtractBatch(ctx context.Context, urls []string, workers int) []Result {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	results := make([]Result, len(urls))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.Extract(ctx, url)
		}()
	}
	wg.Wait()
	return results
}
