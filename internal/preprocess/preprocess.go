// Package preprocess turns collected ad records into cleaned, OCR-enriched
// records ready for classification and analysis.
package preprocess

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/metrics"
	"github.com/JakeFAU/adintel/internal/preprocess/ocr"
	"github.com/JakeFAU/adintel/internal/preprocess/text"
)

// Defaults for Config.
const (
	DefaultConcurrency       = 4
	DefaultMaxMedia          = 5
	DefaultHeadlineMaxLength = 500
	DefaultBodyMaxLength     = 5000
)

// Enrichment step names recorded in quality.enrichment_applied.
const (
	StepTextCleaning       = "text_cleaning"
	StepOCR                = "ocr"
	StepBrandNormalization = "brand_normalization"
)

// Extractor reads the text in an image. *ocr.Engine implements it.
type Extractor interface {
	Extract(ctx context.Context, url string) ocr.Result
}

// Config tunes the preprocessor.
type Config struct {
	Concurrency       int
	MaxMedia          int
	HeadlineMaxLength int
	BodyMaxLength     int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxMedia <= 0 {
		c.MaxMedia = DefaultMaxMedia
	}
	if c.HeadlineMaxLength <= 0 {
		c.HeadlineMaxLength = DefaultHeadlineMaxLength
	}
	if c.BodyMaxLength <= 0 {
		c.BodyMaxLength = DefaultBodyMaxLength
	}
	return c
}

// Preprocessor cleans records and runs OCR over their images. A nil
// Extractor skips OCR.
type Preprocessor struct {
	cfg       Config
	extractor Extractor
	logger    *zap.Logger
}

// New builds a Preprocessor.
func New(cfg Config, extractor Extractor, logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{cfg: cfg.withDefaults(), extractor: extractor, logger: logger}
}

// PreprocessOne builds the preprocessed form of rec. It never panics: any
// failure yields a record whose quality status is failed.
func (p *Preprocessor) PreprocessOne(ctx context.Context, rec ads.AdRecord) (out ads.PreprocessedRecord) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = p.failedRecord(rec, fmt.Errorf("preprocess panic: %v", r), start)
		}
		metrics.ObservePreprocessed(string(out.Quality.PreprocessingStatus), time.Since(start))
	}()

	if err := rec.Validate(); err != nil {
		return p.failedRecord(rec, err, start)
	}

	var (
		problems []string
		steps    []string
	)
	content := &ads.Content{
		Headline:     text.Clean(ads.Deref(rec.Headline), p.cfg.HeadlineMaxLength),
		BodyText:     text.Clean(ads.Deref(rec.BodyText), p.cfg.BodyMaxLength),
		CallToAction: text.NormalizeCallToAction(text.Clean(ads.Deref(rec.CallToAction), 0)),
		Media:        ads.Media{Images: []ads.MediaImage{}, Videos: []string{}},
		LandingPage:  landingPage(rec.LandingPage),
	}
	steps = append(steps, StepTextCleaning)

	if media := limit(rec.MediaURLs, p.cfg.MaxMedia); len(media) > 0 && p.extractor != nil {
		var extracted []string
		for _, u := range media {
			res := p.extractor.Extract(ctx, u)
			content.Media.Images = append(content.Media.Images, ads.MediaImage{
				URL:           u,
				ExtractedText: res.Text,
				OCRConfidence: res.Confidence,
				OCREngine:     res.Engine,
				OCRSuccess:    res.Success,
			})
			if res.Success && res.Text != "" {
				extracted = append(extracted, text.Clean(res.Text, 0))
				continue
			}
			if res.Error != "" {
				problems = append(problems, fmt.Sprintf("ocr failed for %s: %s", u, res.Error))
			}
		}
		content.ExtractedTextFromImages = strings.Join(extracted, " ")
		steps = append(steps, StepOCR)
	}

	brand := ads.OptString(text.Clean(ads.Deref(rec.BrandName), 0))
	metadata := &ads.Metadata{
		BrandName:           brand,
		BrandNameNormalized: text.NormalizeBrandName(ads.Deref(brand)),
		PageName:            rec.PageName,
		FundingEntity:       rec.FundingEntity,
		DetectedKeywords:    nonNil(rec.DetectedKeywords),
		MatchedKeyword:      rec.MatchedKeyword,
		Timestamps:          ads.Timestamps{DetectedAt: rec.CollectedAt, LastSeen: rec.CollectedAt},
	}
	steps = append(steps, StepBrandNormalization)

	out = ads.PreprocessedRecord{
		AdID:        rec.AdID,
		Platform:    rec.Platform,
		SourceURL:   rec.SourceURL,
		CollectedAt: rec.CollectedAt,
		Content:     content,
		Metadata:    metadata,
		Engagement:  ads.Engagement{Impressions: rec.Impressions, SpendRange: rec.SpendRange},
		Quality: ads.Quality{
			PreprocessingStatus:  ads.PreprocessingSuccess,
			ValidationErrors:     nonNil(problems),
			EnrichmentApplied:    steps,
			ProcessingDurationMS: time.Since(start).Milliseconds(),
		},
	}
	p.logger.Debug("ad preprocessed",
		zap.String("ad_id", rec.AdID),
		zap.Int64("duration_ms", out.Quality.ProcessingDurationMS),
	)
	return out
}

func (p *Preprocessor) failedRecord(rec ads.AdRecord, err error, start time.Time) ads.PreprocessedRecord {
	p.logger.Error("preprocessing failed", zap.String("ad_id", rec.AdID), zap.Error(err))
	return ads.PreprocessedRecord{
		AdID:        rec.AdID,
		Platform:    rec.Platform,
		SourceURL:   rec.SourceURL,
		CollectedAt: rec.CollectedAt,
		Engagement:  ads.Engagement{Impressions: rec.Impressions, SpendRange: rec.SpendRange},
		Quality: ads.Quality{
			PreprocessingStatus:  ads.PreprocessingFailed,
			ValidationErrors:     []string{err.Error()},
			EnrichmentApplied:    []string{},
			ProcessingDurationMS: time.Since(start).Milliseconds(),
		},
	}
}

// landingPage reports a landing URL as valid when it is an absolute http(s)
// URL with a host.
func landingPage(raw *string) ads.LandingPage {
	cleaned := ads.OptString(ads.Deref(raw))
	if cleaned == nil {
		return ads.LandingPage{}
	}
	u, err := url.Parse(*cleaned)
	valid := err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	return ads.LandingPage{URL: cleaned, IsValid: valid}
}

func limit(urls []string, n int) []string {
	out := make([]string, 0, min(len(urls), n))
	for _, u := range urls {
		if len(out) == n {
			break
		}
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
