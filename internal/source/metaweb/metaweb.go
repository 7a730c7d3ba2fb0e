// Package metaweb scrapes the public Meta Ad Library website with a headless
// browser, for use when no Graph API token is available.
package metaweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/fetcher/headless"
	"github.com/JakeFAU/adintel/internal/source/dom"
)

// Platform is the tag stamped on every record from this source.
const Platform = "meta_web"

// Defaults for the library website.
const (
	DefaultBaseURL     = "https://www.facebook.com/ads/library/"
	DefaultCountry     = "US"
	DefaultScrolls     = 3
	DefaultScrollDelay = 3 * time.Second
	unknownPage        = "Unknown"
	headlineRunes      = 100
)

// DefaultSelectors locate ad containers, tried in order.
var DefaultSelectors = []string{`[role="article"]`, `div[data-testid]`}

// Config controls the scraper.
type Config struct {
	BaseURL     string
	Country     string
	Scrolls     int
	ScrollDelay time.Duration
	Selectors   []string
	// MaxContainers caps how many containers are read from one page.
	MaxContainers int
}

// Adapter implements collector.SourceAdapter over a headless Renderer.
type Adapter struct {
	cfg       Config
	renderer  headless.Renderer
	transport *collector.Transport
	hasher    ads.Hasher
	logger    *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, renderer headless.Renderer, transport *collector.Transport, hasher ads.Hasher, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = DefaultCountry
	}
	if cfg.Scrolls <= 0 {
		cfg.Scrolls = DefaultScrolls
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = DefaultScrollDelay
	}
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultSelectors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, renderer: renderer, transport: transport, hasher: hasher, logger: logger}
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

// Close releases the browser when the renderer holds one.
func (a *Adapter) Close() error {
	if c, ok := a.renderer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close renderer: %w", err)
		}
	}
	return nil
}

type container struct {
	Keyword     string   `json:"keyword"`
	Selector    string   `json:"selector"`
	Position    int      `json:"position"`
	Bodies      []string `json:"ad_creative_bodies"`
	FullText    string   `json:"full_text"`
	SnapshotURL string   `json:"ad_snapshot_url"`
	Images      []string `json:"images"`
	PageName    string   `json:"page_name"`
}

// SearchURL builds the library search page for keyword.
func (a *Adapter) SearchURL(keyword string) string {
	query := url.Values{}
	query.Set("active_status", "all")
	query.Set("ad_type", "all")
	query.Set("country", a.cfg.Country)
	query.Set("q", keyword)
	query.Set("search_type", "keyword_unordered")
	return a.cfg.BaseURL + "?" + query.Encode()
}

// FetchRawItems renders the search page, scrolls to load more results, and
// extracts one raw item per ad container.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, _ string) (collector.Page, error) {
	target := a.SearchURL(keyword)
	var resp headless.Response
	retries, err := a.transport.Guard(ctx, func(ctx context.Context) error {
		var rerr error
		resp, rerr = a.renderer.Render(ctx, headless.Request{
			URL:         target,
			Scrolls:     a.cfg.Scrolls,
			ScrollDelay: a.cfg.ScrollDelay,
		})
		return rerr
	})
	if err != nil {
		return collector.Page{}, err
	}

	items, err := a.extract(keyword, resp)
	if err != nil {
		return collector.Page{}, err
	}
	return collector.Page{Items: items, Retries: retries}, nil
}

func (a *Adapter) extract(keyword string, resp headless.Response) ([]collector.RawItem, error) {
	doc, err := dom.Parse([]byte(resp.HTML))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(a.SearchURL(keyword))
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if resp.URL != "" {
		if u, perr := url.Parse(resp.URL); perr == nil {
			base = u
		}
	}
	found, selector := dom.FirstMatch(doc, a.cfg.Selectors)
	a.logger.Info("found ad containers",
		zap.String("keyword", keyword),
		zap.String("selector", selector),
		zap.Int("containers", found.Length()),
	)

	var items []collector.RawItem
	var encodeErr error
	found.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if a.cfg.MaxContainers > 0 && i >= a.cfg.MaxContainers {
			return false
		}
		c := container{
			Keyword:  keyword,
			Selector: selector,
			Position: i,
			Bodies:   dom.Texts(s.Find("p")),
			FullText: strings.Join(dom.Texts(s.Find("span")), " "),
			Images:   dom.Attrs(s.Find("img"), "src", base),
			PageName: dom.Text(s.Find(`a[role="link"]`).First()),
		}
		if links := dom.Attrs(s.Find("a"), "href", base); len(links) > 0 {
			c.SnapshotURL = links[0]
		}
		if c.PageName == "" {
			c.PageName = unknownPage
		}
		raw, err := json.Marshal(c)
		if err != nil {
			encodeErr = fmt.Errorf("encode container: %w", err)
			return false
		}
		items = append(items, collector.RawItem{Keyword: keyword, Payload: raw})
		return true
	})
	return items, encodeErr
}

// Normalize maps one scraped container.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	var c container
	if err := json.Unmarshal(item.Payload, &c); err != nil {
		return ads.AdRecord{}, fmt.Errorf("decode container: %w", err)
	}
	if len(c.Bodies) == 0 && c.FullText == "" && len(c.Images) == 0 {
		return ads.AdRecord{}, errors.New("container is empty")
	}
	headline := ""
	if len(c.Bodies) > 0 {
		headline = c.Bodies[0]
	} else {
		headline = truncateRunes(c.FullText, headlineRunes)
	}
	body := c.FullText
	if body == "" {
		body = strings.Join(c.Bodies, " ")
	}
	record := ads.AdRecord{
		AdID:      "meta_web_" + a.hasher.Fingerprint(c.Keyword, strconv.Itoa(c.Position), c.SnapshotURL, c.FullText, strings.Join(c.Bodies, "\n")),
		Platform:  Platform,
		SourceURL: ads.OptString(c.SnapshotURL),
		RawData:   item.Payload,
		Headline:  ads.OptString(headline),
		BodyText:  ads.OptString(body),
		MediaURLs: c.Images,
		BrandName: ads.OptString(c.PageName),
		PageName:  ads.OptString(c.PageName),
	}
	if c.PageName == unknownPage {
		record.CollectionStatus = ads.CollectionPartial
		record.ValidationErrors = []string{"advertiser page name not found"}
	}
	return record, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
