// Package collyfetcher fetches static source pages with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/adintel/internal/policy/retry"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxBodySize = 5 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize truncates larger pages.
	MaxBodySize int
	// Transport overrides the shared HTTP transport.
	Transport http.RoundTripper
}

// Request describes one page to fetch.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is a fetched page.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs single-page GETs. Each call runs on a clone of one base
// collector so concurrent fetches share the connection pool but no state.
type Fetcher struct {
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	base := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	base.WithTransport(cfg.Transport)
	base.SetRequestTimeout(cfg.Timeout)
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	base.MaxBodySize = cfg.MaxBodySize
	base.DetectCharset = true
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	return &Fetcher{base: base}
}

// Fetch executes a single HTTP GET. Non-2xx responses are returned as
// *retry.StatusError so callers can classify them.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	c := f.base.Clone()
	out := &capture{request: request, start: time.Now()}
	c.OnRequest(out.onRequest)
	c.OnResponse(out.onResponse)
	c.OnError(out.onError)

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(request.URL)
	}()
	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
	case err := <-done:
		if out.err != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", request.URL, out.err)
		}
		if err != nil {
			return Response{}, fmt.Errorf("visit %s: %w", request.URL, err)
		}
		return out.resp, nil
	}
}

// capture collects the outcome of one visit. Colly runs the callbacks on the
// visiting goroutine before Visit returns.
type capture struct {
	request Request
	start   time.Time
	resp    Response
	err     error
}

func (c *capture) onRequest(r *colly.Request) {
	for key, values := range c.request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func (c *capture) onResponse(r *colly.Response) {
	c.resp = Response{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(c.start),
	}
}

func (c *capture) onError(r *colly.Response, err error) {
	if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
		c.err = retry.NewStatusError(r.StatusCode, c.request.URL)
		return
	}
	c.err = err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
