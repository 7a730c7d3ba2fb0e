// Package headless renders script-driven pages in headless Chrome and returns
// the DOM after scrolling has triggered lazy loading.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/adintel/internal/policy/retry"
)

// ErrRendererDisabled is returned when headless rendering is not configured.
var ErrRendererDisabled = errors.New("headless renderer disabled")

const (
	scrollScript       = `window.scrollTo(0, document.body.scrollHeight);`
	defaultNavTimeout  = 45 * time.Second
	defaultScrollDelay = 2 * time.Second
	settleDelay        = 500 * time.Millisecond
)

// Config controls the behavior of the headless renderer.
type Config struct {
	// MaxParallel caps concurrent tabs; zero means unlimited.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Headed runs a visible browser window, useful when debugging selectors.
	Headed bool
}

// Request describes a page to render.
type Request struct {
	URL     string
	Headers http.Header
	// Scrolls is the number of scroll-to-bottom steps after load.
	Scrolls int
	// ScrollDelay is the pause after each scroll for content to load.
	ScrollDelay time.Duration
	// WaitSelector is awaited before scrolling; defaults to body.
	WaitSelector string
}

// Response is the rendered DOM.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	HTML       string
	Duration   time.Duration
}

// Renderer renders pages with a headless browser.
type Renderer interface {
	Render(ctx context.Context, request Request) (Response, error)
}

// Browser implements Renderer with chromedp. Every Render opens a new tab in
// one shared browser process.
type Browser struct {
	cfg       Config
	slots     chan struct{}
	allocator context.Context
	shutdown  context.CancelFunc
}

// NewChromedp creates a Browser. Chrome is launched lazily on the first
// Render.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	mode := any("new")
	if cfg.Headed {
		mode = false
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", mode),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocator, shutdown := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{cfg: cfg, slots: slots, allocator: allocator, shutdown: shutdown}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.shutdown()
	return nil
}

// Render navigates to the page, scrolls the requested number of times, and
// returns the resulting DOM. Document responses of 4xx/5xx are returned as
// *retry.StatusError; navigation timeouts are transient.
func (b *Browser) Render(ctx context.Context, request Request) (Response, error) {
	if b.slots != nil {
		select {
		case b.slots <- struct{}{}:
			defer func() { <-b.slots }()
		case <-ctx.Done():
			return Response{}, fmt.Errorf("wait for browser tab: %w", ctx.Err())
		}
	}

	tab, closeTab := chromedp.NewContext(b.allocator)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, b.navTimeout(request))
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	doc := &document{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	var out page
	if err := chromedp.Run(tab, b.actions(request, &out)...); err != nil {
		switch {
		case ctx.Err() != nil:
			return Response{}, fmt.Errorf("render %s: %w", request.URL, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return Response{}, fmt.Errorf("render %s timed out: %w", request.URL, errors.Join(err, retry.ErrTransient))
		default:
			return Response{}, fmt.Errorf("render %s: %w", request.URL, err)
		}
	}

	resp := doc.response(request.URL, out.location)
	if resp.StatusCode >= http.StatusBadRequest {
		return Response{}, retry.NewStatusError(resp.StatusCode, request.URL)
	}
	resp.HTML = out.html
	resp.Duration = time.Since(start)
	return resp, nil
}

// page receives the values read back from the tab.
type page struct {
	html     string
	location string
}

func (b *Browser) actions(request Request, out *page) []chromedp.Action {
	wait := request.WaitSelector
	if wait == "" {
		wait = "body"
	}
	delay := scrollDelay(request)
	actions := []chromedp.Action{
		b.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
	}
	for range request.Scrolls {
		actions = append(actions, chromedp.Evaluate(scrollScript, nil), chromedp.Sleep(delay))
	}
	return append(actions,
		chromedp.Location(&out.location),
		chromedp.OuterHTML("html", &out.html, chromedp.ByQuery),
	)
}

func (b *Browser) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// navTimeout extends the navigation budget by the time spent scrolling.
func (b *Browser) navTimeout(request Request) time.Duration {
	base := b.cfg.NavigationTimeout
	if base <= 0 {
		base = defaultNavTimeout
	}
	return base + time.Duration(request.Scrolls)*scrollDelay(request)
}

func scrollDelay(request Request) time.Duration {
	if request.ScrollDelay > 0 {
		return request.ScrollDelay
	}
	return defaultScrollDelay
}

// document records the first document response seen by a tab. Later
// document responses belong to frames.
type document struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func (d *document) observe(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = int(event.Response.Status)
	d.url = event.Response.URL
	d.headers = http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			d.headers.Add(key, v)
		case []any:
			for _, entry := range v {
				d.headers.Add(key, fmt.Sprint(entry))
			}
		default:
			d.headers.Add(key, fmt.Sprint(v))
		}
	}
}

// response fills in the metadata, falling back to the final location and
// then the requested URL when no document response was observed.
func (d *document) response(requestURL, location string) Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := Response{URL: d.url, StatusCode: d.status, Headers: d.headers.Clone()}
	if resp.URL == "" {
		resp.URL = location
	}
	if resp.URL == "" {
		resp.URL = requestURL
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
