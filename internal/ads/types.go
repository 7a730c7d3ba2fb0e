package ads

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// CollectionStatus reports how completely a source managed to describe an ad.
type CollectionStatus string

const (
	// CollectionSuccess means every expected field was recovered.
	CollectionSuccess CollectionStatus = "success"
	// CollectionPartial means the ad was usable but some fields were missing.
	CollectionPartial CollectionStatus = "partial"
	// CollectionFailed marks a record that could not be described.
	CollectionFailed CollectionStatus = "failed"
)

// PreprocessingStatus reports the outcome of enriching a single record.
type PreprocessingStatus string

const (
	// PreprocessingSuccess marks a fully enriched record.
	PreprocessingSuccess PreprocessingStatus = "success"
	// PreprocessingFailed marks a record whose enrichment raised an error.
	PreprocessingFailed PreprocessingStatus = "failed"
)

// ErrInvalidRecord is returned when a record lacks its identity fields.
var ErrInvalidRecord = errors.New("invalid ad record")

// SpendRange is the spend band reported by a source. Bounds are optional.
type SpendRange struct {
	Lower    *float64 `json:"lower"`
	Upper    *float64 `json:"upper"`
	Currency string   `json:"currency"`
}

// AdRecord is the platform-independent representation of one collected ad.
// Optional fields are pointers so they serialize as null instead of vanishing.
type AdRecord struct {
	AdID             string           `json:"ad_id"`
	Platform         string           `json:"platform"`
	SourceURL        *string          `json:"source_url"`
	CollectedAt      time.Time        `json:"collected_at"`
	RawData          json.RawMessage  `json:"raw_data"`
	Headline         *string          `json:"headline"`
	BodyText         *string          `json:"body_text"`
	CallToAction     *string          `json:"call_to_action"`
	MediaURLs        []string         `json:"media_urls"`
	VideoURLs        []string         `json:"video_urls"`
	LandingPage      *string          `json:"landing_page"`
	BrandName        *string          `json:"brand_name"`
	PageName         *string          `json:"page_name"`
	FundingEntity    *string          `json:"funding_entity"`
	DetectedKeywords []string         `json:"detected_keywords"`
	MatchedKeyword   *string          `json:"matched_keyword"`
	StartDate        *string          `json:"start_date"`
	EndDate          *string          `json:"end_date"`
	Impressions      *int64           `json:"impressions"`
	SpendRange       *SpendRange      `json:"spend_range"`
	CollectionStatus CollectionStatus `json:"collection_status"`
	ValidationErrors []string         `json:"validation_errors"`
	RetryCount       int              `json:"retry_count"`
}

// Validate checks the identity fields every downstream consumer relies on.
func (r AdRecord) Validate() error {
	if strings.TrimSpace(r.AdID) == "" {
		return errors.Join(ErrInvalidRecord, errors.New("ad_id is required"))
	}
	if strings.TrimSpace(r.Platform) == "" {
		return errors.Join(ErrInvalidRecord, errors.New("platform is required"))
	}
	return nil
}

// Finalize replaces nil collections with empty ones and derives the collection
// status from the fields that were recovered when the source did not set one.
func (r *AdRecord) Finalize() {
	if r.MediaURLs == nil {
		r.MediaURLs = []string{}
	}
	if r.VideoURLs == nil {
		r.VideoURLs = []string{}
	}
	if r.DetectedKeywords == nil {
		r.DetectedKeywords = []string{}
	}
	if r.ValidationErrors == nil {
		r.ValidationErrors = []string{}
	}
	if len(r.RawData) == 0 {
		r.RawData = json.RawMessage("{}")
	}
	if r.CollectionStatus != "" {
		return
	}
	if r.Headline == nil && r.BodyText == nil {
		r.CollectionStatus = CollectionPartial
		return
	}
	r.CollectionStatus = CollectionSuccess
}

// MediaImage is one processed image with its OCR outcome.
type MediaImage struct {
	URL           string  `json:"url"`
	ExtractedText string  `json:"extracted_text"`
	OCRConfidence float64 `json:"ocr_confidence"`
	OCREngine     string  `json:"ocr_engine"`
	OCRSuccess    bool    `json:"ocr_success"`
}

// Media groups the processed media of an ad.
type Media struct {
	Images []MediaImage `json:"images"`
	Videos []string     `json:"videos"`
}

// LandingPage is the cleaned landing URL plus a syntactic validity flag.
type LandingPage struct {
	URL     *string `json:"url"`
	IsValid bool    `json:"is_valid"`
}

// Content is the cleaned creative of an ad.
type Content struct {
	Headline                string      `json:"headline"`
	BodyText                string      `json:"body_text"`
	CallToAction            string      `json:"call_to_action"`
	ExtractedTextFromImages string      `json:"extracted_text_from_images"`
	Media                   Media       `json:"media"`
	LandingPage             LandingPage `json:"landing_page"`
}

// Timestamps records when an ad was first and last observed.
type Timestamps struct {
	DetectedAt time.Time `json:"detected_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// Metadata holds brand attribution for an ad.
type Metadata struct {
	BrandName           *string    `json:"brand_name"`
	BrandNameNormalized string     `json:"brand_name_normalized"`
	PageName            *string    `json:"page_name"`
	FundingEntity       *string    `json:"funding_entity"`
	DetectedKeywords    []string   `json:"detected_keywords"`
	MatchedKeyword      *string    `json:"matched_keyword"`
	Timestamps          Timestamps `json:"timestamps"`
}

// Engagement carries reach and spend figures through unchanged.
type Engagement struct {
	Impressions *int64      `json:"impressions"`
	SpendRange  *SpendRange `json:"spend_range"`
}

// Quality describes how preprocessing went for the record.
type Quality struct {
	PreprocessingStatus  PreprocessingStatus `json:"preprocessing_status"`
	ValidationErrors     []string            `json:"validation_errors"`
	EnrichmentApplied    []string            `json:"enrichment_applied"`
	ProcessingDurationMS int64               `json:"processing_duration_ms"`
}

// PreprocessedRecord is the enriched form of an AdRecord. Content and Metadata
// are nil when preprocessing failed.
type PreprocessedRecord struct {
	AdID        string     `json:"ad_id"`
	Platform    string     `json:"platform"`
	SourceURL   *string    `json:"source_url"`
	CollectedAt time.Time  `json:"collected_at"`
	Content     *Content   `json:"content"`
	Metadata    *Metadata  `json:"metadata"`
	Engagement  Engagement `json:"engagement"`
	Quality     Quality    `json:"quality"`
}

// Failed reports whether preprocessing failed for the record.
func (p PreprocessedRecord) Failed() bool {
	return p.Quality.PreprocessingStatus == PreprocessingFailed
}
