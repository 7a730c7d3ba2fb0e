// Package web scrapes promotional blocks from competitor websites. Keywords
// are interpreted as page URLs.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	collyfetcher "github.com/JakeFAU/adintel/internal/fetcher/colly"
	"github.com/JakeFAU/adintel/internal/fetcher/headless"
	"github.com/JakeFAU/adintel/internal/headless/detector"
	"github.com/JakeFAU/adintel/internal/source/dom"
	"github.com/JakeFAU/adintel/internal/source/payload"
)

// Platform is the tag stamped on every record from this source.
const Platform = "web"

// DefaultSelectors locate promotional content, tried in order.
var DefaultSelectors = []string{
	`div[class*="promo"]`,
	`div[class*="banner"]`,
	`div[class*="advertisement"]`,
	`div[id*="ad-"]`,
	`section[class*="campaign"]`,
}

// ErrInvalidTarget is returned when a keyword is not an absolute http(s) URL.
var ErrInvalidTarget = errors.New("competitor target must be an absolute http(s) url")

// PageFetcher retrieves one HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Config controls the scraper.
type Config struct {
	Selectors []string
	// RenderJS re-renders client-side pages in a headless browser.
	RenderJS bool
	// RenderThreshold is the body size under which script-heavy pages are
	// rendered.
	RenderThreshold int
}

// Adapter implements collector.SourceAdapter for competitor pages.
type Adapter struct {
	cfg       Config
	fetcher   PageFetcher
	transport *collector.Transport
	hasher    ads.Hasher
	logger    *zap.Logger
	renderer  headless.Renderer
	detector  *detector.Heuristic
}

// New builds an Adapter.
func New(cfg Config, fetcher PageFetcher, transport *collector.Transport, hasher ads.Hasher, logger *zap.Logger) *Adapter {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultSelectors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, transport: transport, hasher: hasher, logger: logger}
}

// WithRenderer enables the headless fallback for pages that render their
// content with JavaScript.
func (a *Adapter) WithRenderer(renderer headless.Renderer) *Adapter {
	a.renderer = renderer
	a.detector = detector.NewHeuristic(a.cfg.RenderThreshold)
	return a
}

// Close releases the browser when the renderer holds one.
func (a *Adapter) Close() error {
	if c, ok := a.renderer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close renderer: %w", err)
		}
	}
	return nil
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

type block struct {
	Selector  string   `json:"selector"`
	Position  int      `json:"position"`
	Headline  string   `json:"headline"`
	BodyText  string   `json:"body_text"`
	Images    []string `json:"images"`
	Links     []string `json:"links"`
	SourceURL string   `json:"source_url"`
}

// FetchRawItems fetches the competitor page named by keyword and returns the
// blocks matched by the first selector that finds any.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, _ string) (collector.Page, error) {
	target, err := url.Parse(keyword)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return collector.Page{}, fmt.Errorf("%w: %q", ErrInvalidTarget, keyword)
	}

	var resp collyfetcher.Response
	retries, err := a.transport.Guard(ctx, func(ctx context.Context) error {
		var ferr error
		resp, ferr = a.fetcher.Fetch(ctx, collyfetcher.Request{
			URL:     target.String(),
			Headers: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
		})
		return ferr
	})
	if err != nil {
		return collector.Page{}, err
	}

	body := resp.Body
	if a.renderer != nil && a.detector.ShouldRender(resp.StatusCode, body) {
		body = a.render(ctx, target.String(), body)
	}

	doc, err := dom.Parse(body)
	if err != nil {
		return collector.Page{}, err
	}
	base := target
	if resp.URL != "" {
		if u, perr := url.Parse(resp.URL); perr == nil {
			base = u
		}
	}

	found, selector := dom.FirstMatch(doc, a.cfg.Selectors)
	var items []collector.RawItem
	var encodeErr error
	found.EachWithBreak(func(i int, s *goquery.Selection) bool {
		b := block{
			Selector:  selector,
			Position:  i,
			Headline:  dom.Text(s.Find("h1, h2, h3").First()),
			BodyText:  dom.Text(s),
			Images:    dom.Attrs(s.Find("img"), "src", base),
			Links:     dom.Attrs(s.Find("a"), "href", base),
			SourceURL: base.String(),
		}
		raw, err := payload.Marshal(b)
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
	a.logger.Debug("scraped competitor page",
		zap.String("url", base.String()),
		zap.String("selector", selector),
		zap.Int("blocks", len(items)),
	)
	return collector.Page{Items: items, Retries: retries}, nil
}

// render returns the browser DOM for pageURL, or fallback when rendering
// fails.
func (a *Adapter) render(ctx context.Context, pageURL string, fallback []byte) []byte {
	var rendered headless.Response
	_, err := a.transport.Guard(ctx, func(ctx context.Context) error {
		var rerr error
		rendered, rerr = a.renderer.Render(ctx, headless.Request{URL: pageURL})
		return rerr
	})
	if err != nil {
		a.logger.Warn("headless render failed, using static page", zap.String("url", pageURL), zap.Error(err))
		return fallback
	}
	a.logger.Debug("rendered client-side page", zap.String("url", pageURL), zap.Duration("dur", rendered.Duration))
	return []byte(rendered.HTML)
}

// Normalize maps one scraped block. IDs fingerprint the page, the block's
// position and its content, so repeated runs over an unchanged page yield the
// same IDs and identical blocks on one page stay distinct.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	var b block
	if err := json.Unmarshal(item.Payload, &b); err != nil {
		return ads.AdRecord{}, fmt.Errorf("decode block: %w", err)
	}
	if b.SourceURL == "" {
		return ads.AdRecord{}, errors.New("block has no source url")
	}
	if b.Headline == "" && b.BodyText == "" && len(b.Images) == 0 {
		return ads.AdRecord{}, errors.New("block is empty")
	}
	var landing string
	if len(b.Links) > 0 {
		landing = b.Links[0]
	}
	record := ads.AdRecord{
		AdID:        "web_" + a.hasher.Fingerprint(b.SourceURL, strconv.Itoa(b.Position), b.Headline, b.BodyText),
		Platform:    Platform,
		SourceURL:   ads.OptString(b.SourceURL),
		RawData:     item.Payload,
		Headline:    ads.OptString(b.Headline),
		BodyText:    ads.OptString(b.BodyText),
		MediaURLs:   b.Images,
		LandingPage: ads.OptString(landing),
	}
	if u, err := url.Parse(b.SourceURL); err == nil {
		record.PageName = ads.OptString(u.Hostname())
	}
	return record, nil
}
