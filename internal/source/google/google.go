// Package google scrapes ad listings from the Google Ads Transparency Center.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	collyfetcher "github.com/JakeFAU/adintel/internal/fetcher/colly"
	"github.com/JakeFAU/adintel/internal/source/dom"
	"github.com/JakeFAU/adintel/internal/source/payload"
)

// Platform is the tag stamped on every record from this source.
const Platform = "google"

// Defaults for the transparency center.
const (
	DefaultBaseURL = "https://adstransparency.google.com"
	DefaultRegion  = "US"
	itemSelector   = "div.ad-item"
)

// PageFetcher retrieves one HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Config controls the scraper.
type Config struct {
	BaseURL string
	Region  string
}

// Adapter implements collector.SourceAdapter by scraping search results.
// Each keyword yields a single page.
type Adapter struct {
	cfg       Config
	fetcher   PageFetcher
	transport *collector.Transport
	hasher    ads.Hasher
	logger    *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, fetcher PageFetcher, transport *collector.Transport, hasher ads.Hasher, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, transport: transport, hasher: hasher, logger: logger}
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

type listing struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Advertiser  string `json:"advertiser"`
	URL         string `json:"url"`
}

// FetchRawItems scrapes the search results page for keyword.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, _ string) (collector.Page, error) {
	query := url.Values{}
	query.Set("q", keyword)
	query.Set("region", a.cfg.Region)
	target := strings.TrimRight(a.cfg.BaseURL, "/") + "/search?" + query.Encode()

	var resp collyfetcher.Response
	retries, err := a.transport.Guard(ctx, func(ctx context.Context) error {
		var ferr error
		resp, ferr = a.fetcher.Fetch(ctx, collyfetcher.Request{
			URL:     target,
			Headers: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
		})
		return ferr
	})
	if err != nil {
		return collector.Page{}, err
	}

	doc, err := dom.Parse(resp.Body)
	if err != nil {
		return collector.Page{}, err
	}
	base, err := url.Parse(target)
	if err != nil {
		return collector.Page{}, fmt.Errorf("parse search url: %w", err)
	}
	if resp.URL != "" {
		if u, perr := url.Parse(resp.URL); perr == nil {
			base = u
		}
	}

	var items []collector.RawItem
	var encodeErr error
	doc.Find(itemSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		l := listing{
			ID:          strings.TrimSpace(s.AttrOr("data-id", "")),
			Position:    i,
			Title:       dom.Text(s.Find("h3").First()),
			Description: dom.Text(s.Find("p").First()),
			Advertiser:  strings.TrimSpace(s.AttrOr("data-advertiser", "")),
		}
		if href, ok := s.Find("a").First().Attr("href"); ok {
			l.URL = payload.Resolve(base, href)
		}
		raw, err := payload.Marshal(l)
		if err != nil {
			encodeErr = err
			return false
		}
		items = append(items, collector.RawItem{Keyword: keyword, Payload: raw})
		return true
	})
	if encodeErr != nil {
		return collector.Page{}, encodeErr
	}
	a.logger.Debug("scraped search page", zap.String("keyword", keyword), zap.Int("ads", len(items)))
	return collector.Page{Items: items, Retries: retries}, nil
}

// Normalize maps one scraped listing. Listings without a data-id get a stable
// identifier derived from their position and content.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	var l listing
	if err := json.Unmarshal(item.Payload, &l); err != nil {
		return ads.AdRecord{}, fmt.Errorf("decode listing: %w", err)
	}
	id := l.ID
	if id == "" {
		if l.Title == "" && l.URL == "" && l.Description == "" {
			return ads.AdRecord{}, errors.New("listing is empty")
		}
		id = a.hasher.Fingerprint(strconv.Itoa(l.Position), l.Advertiser, l.Title, l.URL, l.Description)
	}
	return ads.AdRecord{
		AdID:        "google_" + id,
		Platform:    Platform,
		SourceURL:   ads.OptString(l.URL),
		RawData:     item.Payload,
		Headline:    ads.OptString(l.Title),
		BodyText:    ads.OptString(l.Description),
		LandingPage: ads.OptString(l.URL),
		BrandName:   ads.OptString(l.Advertiser),
		PageName:    ads.OptString(l.Advertiser),
	}, nil
}
