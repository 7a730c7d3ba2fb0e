// Package source maps platform identifiers to their collector adapters.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/clock/system"
	"github.com/JakeFAU/adintel/internal/collector"
	collyfetcher "github.com/JakeFAU/adintel/internal/fetcher/colly"
	"github.com/JakeFAU/adintel/internal/fetcher/headless"
	"github.com/JakeFAU/adintel/internal/hash/sha256"
	"github.com/JakeFAU/adintel/internal/policy/ratelimit"
	"github.com/JakeFAU/adintel/internal/policy/retry"
	"github.com/JakeFAU/adintel/internal/source/bigspy"
	"github.com/JakeFAU/adintel/internal/source/google"
	"github.com/JakeFAU/adintel/internal/source/meta"
	"github.com/JakeFAU/adintel/internal/source/metaweb"
	"github.com/JakeFAU/adintel/internal/source/mock"
	"github.com/JakeFAU/adintel/internal/source/web"
)

// ErrUnknownPlatform is returned for platform identifiers with no adapter.
var ErrUnknownPlatform = errors.New("unknown platform")

// HTTPSettings tunes the shared transport every network adapter uses.
type HTTPSettings struct {
	Timeout   time.Duration
	UserAgent string
	Retry     retry.Config
}

// Settings carries the per-platform configuration.
type Settings struct {
	HTTP    HTTPSettings
	Meta    meta.Config
	BigSpy  bigspy.Config
	Google  google.Config
	MetaWeb metaweb.Config
	Web     web.Config
	Mock    mock.Config
	// Headless configures the browser used when no Renderer is injected.
	Headless headless.Config
}

// PageFetcher retrieves one static HTML page.
type PageFetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Deps are the collaborators shared by adapters. Nil fields get production
// defaults.
type Deps struct {
	Logger      *zap.Logger
	Clock       ads.Clock
	Hasher      ads.Hasher
	HTTPClient  *http.Client
	PageFetcher PageFetcher
	Renderer    headless.Renderer
}

type factory func(job ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error)

var factories = map[string]factory{
	meta.Platform: func(job ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error) {
		return meta.New(s.Meta, job, t, d.Logger), nil
	},
	bigspy.Platform: func(_ ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error) {
		return bigspy.New(s.BigSpy, t, d.Logger), nil
	},
	google.Platform: func(_ ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error) {
		return google.New(s.Google, pageFetcher(s, d), t, d.Hasher, d.Logger), nil
	},
	web.Platform: func(_ ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error) {
		adapter := web.New(s.Web, pageFetcher(s, d), t, d.Hasher, d.Logger)
		if !s.Web.RenderJS {
			return adapter, nil
		}
		renderer, err := renderer(s, d)
		if err != nil {
			return nil, err
		}
		return adapter.WithRenderer(renderer), nil
	},
	metaweb.Platform: func(_ ads.CollectionConfig, s Settings, d Deps, t *collector.Transport) (collector.SourceAdapter, error) {
		renderer, err := renderer(s, d)
		if err != nil {
			return nil, err
		}
		return metaweb.New(s.MetaWeb, renderer, t, d.Hasher, d.Logger), nil
	},
	mock.Platform: func(_ ads.CollectionConfig, s Settings, d Deps, _ *collector.Transport) (collector.SourceAdapter, error) {
		return mock.New(s.Mock, d.Clock, d.Logger), nil
	},
}

// Platforms lists the registered platform identifiers in sorted order.
func Platforms() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the adapter for job.Platform. Every adapter gets its own rate
// limiter and retry policy. Callers should Close the adapter when it
// implements collector.Closer.
func New(job ads.CollectionConfig, s Settings, d Deps) (collector.SourceAdapter, error) {
	job = job.Normalized()
	build, ok := factories[job.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPlatform, job.Platform, Platforms())
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named("source").With(zap.String("platform", job.Platform))
	if d.Clock == nil {
		d.Clock = system.New()
	}
	if d.Hasher == nil {
		d.Hasher = sha256.New()
	}

	client := d.HTTPClient
	if client == nil {
		timeout := s.HTTP.Timeout
		if timeout <= 0 {
			timeout = collector.DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	transport := collector.NewTransport(
		client,
		ratelimit.New(ratelimit.Config{RPS: job.RateLimitPerSecond, Label: job.Platform}),
		retry.New(s.HTTP.Retry),
		collector.TransportConfig{Platform: job.Platform, UserAgent: s.HTTP.UserAgent},
		d.Logger,
	)
	return build(job, s, d, transport)
}

func pageFetcher(s Settings, d Deps) PageFetcher {
	if d.PageFetcher != nil {
		return d.PageFetcher
	}
	return collyfetcher.New(collyfetcher.Config{UserAgent: s.HTTP.UserAgent, Timeout: s.HTTP.Timeout})
}

func renderer(s Settings, d Deps) (headless.Renderer, error) {
	if d.Renderer != nil {
		return d.Renderer, nil
	}
	hc := s.Headless
	if hc.UserAgent == "" {
		hc.UserAgent = s.HTTP.UserAgent
	}
	browser, err := headless.NewChromedp(hc)
	if err != nil {
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	return browser, nil
}
