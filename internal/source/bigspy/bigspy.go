// Package bigspy collects ads from the BigSpy ad intelligence search API.
package bigspy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/source/payload"
)

// Platform is the tag stamped on every record from this source.
const Platform = "bigspy"

// Defaults for the search endpoint.
const (
	DefaultBaseURL  = "https://bigspy.com/api/v1/ad/search"
	DefaultPageSize = 20
	DefaultMaxPages = 5
	DefaultNetwork  = "facebook"
)

// Config controls the BigSpy client.
type Config struct {
	BaseURL  string
	PageSize int
	// MaxPages caps pagination per keyword.
	MaxPages int
	// Network selects the ad network BigSpy searches.
	Network string
}

// Adapter implements collector.SourceAdapter for BigSpy.
type Adapter struct {
	cfg       Config
	transport *collector.Transport
	logger    *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, transport *collector.Transport, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, transport: transport, logger: logger}
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

// FetchRawItems requests one page. Cursors are page numbers; the first page
// is 1 and pagination stops after MaxPages.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, cursor string) (collector.Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return collector.Page{}, fmt.Errorf("invalid page cursor %q", cursor)
		}
		page = n
	}

	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(a.cfg.PageSize))
	query.Set("platform", a.cfg.Network)
	query.Set("sort", "recent")

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	retries, err := a.transport.GetJSON(ctx, a.cfg.BaseURL, query, &env)
	if err != nil {
		return collector.Page{}, err
	}

	items := make([]collector.RawItem, 0, len(env.Data))
	for _, raw := range env.Data {
		items = append(items, collector.RawItem{Keyword: keyword, Payload: raw})
	}
	next := ""
	if len(items) > 0 && page < a.cfg.MaxPages {
		next = strconv.Itoa(page + 1)
	}
	a.logger.Debug("fetched page",
		zap.String("keyword", keyword),
		zap.Int("page", page),
		zap.Int("ads", len(items)),
	)
	return collector.Page{Items: items, Next: next, Retries: retries}, nil
}

type searchHit struct {
	ID          payload.ID     `json:"id"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	CTA         string         `json:"cta"`
	Images      []string       `json:"images"`
	Videos      []string       `json:"videos"`
	LandingPage string         `json:"landing_page"`
	Advertiser  string         `json:"advertiser"`
	PageName    string         `json:"page_name"`
	FirstSeen   string         `json:"first_seen"`
	LastSeen    string         `json:"last_seen"`
	Impressions payload.Number `json:"impressions"`
}

// Normalize maps one BigSpy search hit to the canonical record.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	var hit searchHit
	if err := json.Unmarshal(item.Payload, &hit); err != nil {
		return ads.AdRecord{}, fmt.Errorf("decode search hit: %w", err)
	}
	id := strings.TrimSpace(string(hit.ID))
	if id == "" {
		return ads.AdRecord{}, errors.New("search hit has no id")
	}

	record := ads.AdRecord{
		AdID:         "bigspy_" + id,
		Platform:     Platform,
		SourceURL:    ads.OptString(hit.URL),
		RawData:      item.Payload,
		Headline:     ads.OptString(hit.Title),
		BodyText:     ads.OptString(hit.Description),
		CallToAction: ads.OptString(hit.CTA),
		MediaURLs:    nonBlank(hit.Images),
		VideoURLs:    nonBlank(hit.Videos),
		LandingPage:  ads.OptString(hit.LandingPage),
		BrandName:    ads.OptString(hit.Advertiser),
		PageName:     ads.OptString(hit.PageName),
		StartDate:    ads.OptString(hit.FirstSeen),
		EndDate:      ads.OptString(hit.LastSeen),
		Impressions:  hit.Impressions.Int(),
	}
	if record.PageName == nil {
		record.PageName = record.BrandName
	}
	return record, nil
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
