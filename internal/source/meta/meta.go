// Package meta collects ads from the Meta Ad Library Graph API.
package meta

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
const Platform = "meta"

// Defaults for the Graph API endpoint.
const (
	DefaultBaseURL  = "https://graph.facebook.com/v18.0/ads_archive"
	DefaultPageSize = 30
)

// Fields requested from the ads_archive edge.
const Fields = "id,ad_creative_bodies,ad_creative_link_captions,ad_creative_link_descriptions," +
	"ad_creative_link_titles,ad_delivery_start_time,ad_delivery_stop_time,ad_snapshot_url," +
	"currency,funding_entity,page_name,impressions,spend"

// MissingTokenWarning is surfaced when the adapter runs without credentials.
const MissingTokenWarning = "META_ACCESS_TOKEN not set; querying the Ad Library without credentials, results will be limited"

// Config controls the Graph API client.
type Config struct {
	BaseURL     string
	AccessToken string
	PageSize    int
	Countries   []string
}

// Adapter implements collector.SourceAdapter for the Graph API.
type Adapter struct {
	cfg       Config
	job       ads.CollectionConfig
	transport *collector.Transport
	logger    *zap.Logger
	warnings  []string
}

// New builds an Adapter. A missing access token is not an error: the adapter
// runs in a degraded mode and reports a warning.
func New(cfg Config, job ads.CollectionConfig, transport *collector.Transport, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if len(cfg.Countries) == 0 {
		cfg.Countries = []string{"US"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{cfg: cfg, job: job, transport: transport, logger: logger}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		logger.Warn(MissingTokenWarning)
		a.warnings = append(a.warnings, MissingTokenWarning)
	}
	return a
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

// Warnings implements collector.Warner.
func (a *Adapter) Warnings() []string { return a.warnings }

type envelope struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchRawItems requests one page of archived ads for keyword.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, cursor string) (collector.Page, error) {
	countries, err := json.Marshal(a.cfg.Countries)
	if err != nil {
		return collector.Page{}, fmt.Errorf("encode countries: %w", err)
	}
	query := url.Values{}
	query.Set("search_terms", keyword)
	query.Set("ad_reached_countries", string(countries))
	query.Set("ad_active_status", "ALL")
	query.Set("limit", strconv.Itoa(a.cfg.PageSize))
	query.Set("fields", Fields)
	if a.cfg.AccessToken != "" {
		query.Set("access_token", a.cfg.AccessToken)
	}
	if cursor != "" {
		query.Set("after", cursor)
	}
	if a.job.StartDate != nil {
		query.Set("ad_delivery_date_min", a.job.StartDate.Format("2006-01-02"))
	}
	if a.job.EndDate != nil {
		query.Set("ad_delivery_date_max", a.job.EndDate.Format("2006-01-02"))
	}

	var env envelope
	retries, err := a.transport.GetJSON(ctx, a.cfg.BaseURL, query, &env)
	if err != nil {
		return collector.Page{}, err
	}
	items := make([]collector.RawItem, 0, len(env.Data))
	for _, raw := range env.Data {
		items = append(items, collector.RawItem{Keyword: keyword, Payload: raw})
	}
	a.logger.Debug("fetched page",
		zap.String("keyword", keyword),
		zap.Int("ads", len(items)),
		zap.Bool("has_next", env.Paging.Cursors.After != ""),
	)
	return collector.Page{Items: items, Next: env.Paging.Cursors.After, Retries: retries}, nil
}

type bounds struct {
	Lower payload.Number `json:"lower_bound"`
	Upper payload.Number `json:"upper_bound"`
}

type archivedAd struct {
	ID               string   `json:"id"`
	CreativeBodies   []string `json:"ad_creative_bodies"`
	LinkCaptions     []string `json:"ad_creative_link_captions"`
	LinkDescriptions []string `json:"ad_creative_link_descriptions"`
	LinkTitles       []string `json:"ad_creative_link_titles"`
	DeliveryStart    string   `json:"ad_delivery_start_time"`
	DeliveryStop     string   `json:"ad_delivery_stop_time"`
	SnapshotURL      string   `json:"ad_snapshot_url"`
	Currency         string   `json:"currency"`
	FundingEntity    string   `json:"funding_entity"`
	PageName         string   `json:"page_name"`
	Impressions      *bounds  `json:"impressions"`
	Spend            *bounds  `json:"spend"`
}

// Normalize maps one Graph API ad to the canonical record.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	return NormalizeArchived(item.Payload, Platform)
}

// NormalizeArchived maps an ads_archive shaped payload to a record tagged
// with platform. The ad id is namespaced as platform_id.
func NormalizeArchived(raw json.RawMessage, platform string) (ads.AdRecord, error) {
	var ad archivedAd
	if err := json.Unmarshal(raw, &ad); err != nil {
		return ads.AdRecord{}, fmt.Errorf("decode archived ad: %w", err)
	}
	if strings.TrimSpace(ad.ID) == "" {
		return ads.AdRecord{}, errors.New("archived ad has no id")
	}

	record := ads.AdRecord{
		AdID:          platform + "_" + ad.ID,
		Platform:      platform,
		SourceURL:     ads.OptString(ad.SnapshotURL),
		RawData:       raw,
		Headline:      ads.OptString(payload.First(ad.CreativeBodies)),
		BodyText:      ads.OptString(payload.First(ad.LinkDescriptions)),
		CallToAction:  ads.OptString(payload.First(ad.LinkCaptions)),
		BrandName:     ads.OptString(ad.PageName),
		PageName:      ads.OptString(ad.PageName),
		FundingEntity: ads.OptString(ad.FundingEntity),
		StartDate:     ads.OptString(ad.DeliveryStart),
		EndDate:       ads.OptString(ad.DeliveryStop),
	}
	if record.Headline == nil {
		record.Headline = ads.OptString(payload.First(ad.LinkTitles))
	}
	if ad.Impressions != nil {
		record.Impressions = ad.Impressions.Lower.Int()
	}
	if ad.Spend != nil {
		currency := ad.Currency
		if currency == "" {
			currency = "USD"
		}
		record.SpendRange = &ads.SpendRange{
			Lower:    ad.Spend.Lower.Float(),
			Upper:    ad.Spend.Upper.Float(),
			Currency: currency,
		}
	}
	if record.Headline == nil && record.BodyText == nil {
		record.CollectionStatus = ads.CollectionPartial
		record.ValidationErrors = []string{"ad has no creative text"}
	}
	return record, nil
}
