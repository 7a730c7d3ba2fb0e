package metaweb

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/fetcher/headless"
	"github.com/JakeFAU/adintel/internal/hash/sha256"
	"github.com/JakeFAU/adintel/internal/policy/ratelimit"
	"github.com/JakeFAU/adintel/internal/policy/retry"
)

const libraryPage = `<html><body>
<div role="article">
  <a role="link" href="/nike">Nike</a>
  <span>Sponsored</span><span>Just Do It</span>
  <p>Meet the new Pegasus.</p>
  <img src="https://scontent.example.com/p.jpg">
</div>
<div role="article">
  <span>Only spans here</span>
</div>
<div data-testid="x"><p>fallback only</p></div>
</body></html>`

const fallbackPage = `<html><body><div data-testid="card"><p>From fallback</p></div></body></html>`

type stubRenderer struct {
	html     string
	requests []headless.Request
	closed   bool
}

func (s *stubRenderer) Render(_ context.Context, req headless.Request) (headless.Response, error) {
	s.requests = append(s.requests, req)
	return headless.Response{URL: "https://www.facebook.com/ads/library/", StatusCode: 200, HTML: s.html}, nil
}

func (s *stubRenderer) Close() error {
	s.closed = true
	return nil
}

func newAdapter(r headless.Renderer) *Adapter {
	tr := collector.NewTransport(nil,
		ratelimit.New(ratelimit.Config{RPS: 1000}),
		retry.New(retry.Config{MinDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		collector.TransportConfig{Platform: Platform},
		zap.NewNop(),
	)
	return New(Config{ScrollDelay: time.Millisecond}, r, tr, sha256.New(), zap.NewNop())
}

// TestFetchRawItemsExtractsContainers reads each article and its parts.
func TestFetchRawItemsExtractsContainers(t *testing.T) {
	t.Parallel()

	r := &stubRenderer{html: libraryPage}
	a := newAdapter(r)
	page, err := a.FetchRawItems(context.Background(), "nike", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Empty(t, page.Next)

	require.Len(t, r.requests, 1)
	require.Equal(t, DefaultScrolls, r.requests[0].Scrolls)
	u, err := url.Parse(r.requests[0].URL)
	require.NoError(t, err)
	require.Equal(t, "nike", u.Query().Get("q"))
	require.Equal(t, "US", u.Query().Get("country"))

	first, err := a.Normalize(page.Items[0])
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.AdID, "meta_web_"))
	require.Equal(t, Platform, first.Platform)
	require.Equal(t, "Meet the new Pegasus.", ads.Deref(first.Headline))
	require.Equal(t, "Sponsored Just Do It", ads.Deref(first.BodyText))
	require.Equal(t, "Nike", ads.Deref(first.BrandName))
	require.Equal(t, "https://www.facebook.com/nike", ads.Deref(first.SourceURL))
	require.Equal(t, []string{"https://scontent.example.com/p.jpg"}, first.MediaURLs)

	second, err := a.Normalize(page.Items[1])
	require.NoError(t, err)
	require.Equal(t, "Only spans here", ads.Deref(second.Headline))
	require.Equal(t, "Unknown", ads.Deref(second.PageName))
	require.Equal(t, ads.CollectionPartial, second.CollectionStatus)
	require.NotEqual(t, first.AdID, second.AdID)

	require.NoError(t, a.Close())
	require.True(t, r.closed)
}

// TestFetchRawItemsFallsBackToSecondSelector uses data-testid when no article exists.
func TestFetchRawItemsFallsBackToSecondSelector(t *testing.T) {
	t.Parallel()

	a := newAdapter(&stubRenderer{html: fallbackPage})
	page, err := a.FetchRawItems(context.Background(), "nike", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	rec, err := a.Normalize(page.Items[0])
	require.NoError(t, err)
	require.Equal(t, "From fallback", ads.Deref(rec.Headline))
}

// TestFetchRawItemsRendererDisabled surfaces the renderer error.
func TestFetchRawItemsRendererDisabled(t *testing.T) {
	t.Parallel()

	a := newAdapter(headless.NewNoop())
	_, err := a.FetchRawItems(context.Background(), "nike", "")
	require.ErrorIs(t, err, headless.ErrRendererDisabled)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "héé", truncateRunes("héééé", 3))
	require.Equal(t, "ab", truncateRunes("ab", 3))
}

// TestIdenticalContainersGetDistinctIDs keeps carousel clones apart.
func TestIdenticalContainersGetDistinctIDs(t *testing.T) {
	t.Parallel()

	const clones = `<html><body>
<div role="article"><a role="link" href="/nike">Nike</a><p>Meet the new Pegasus.</p></div>
<div role="article"><a role="link" href="/nike">Nike</a><p>Meet the new Pegasus.</p></div>
</body></html>`
	a := newAdapter(&stubRenderer{html: clones})
	page, err := a.FetchRawItems(context.Background(), "nike", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	first, err := a.Normalize(page.Items[0])
	require.NoError(t, err)
	second, err := a.Normalize(page.Items[1])
	require.NoError(t, err)
	require.NotEqual(t, first.AdID, second.AdID)
	require.Equal(t, ads.Deref(first.Headline), ads.Deref(second.Headline))
}

// TestExtractFallsBackToSearchURL resolves links against the search page when
// the rendered URL does not parse.
func TestExtractFallsBackToSearchURL(t *testing.T) {
	t.Parallel()

	a := newAdapter(&stubRenderer{})
	items, err := a.extract("nike", headless.Response{URL: "http://[::1", HTML: libraryPage})
	require.NoError(t, err)
	require.Len(t, items, 2)

	rec, err := a.Normalize(items[0])
	require.NoError(t, err)
	require.Equal(t, "https://www.facebook.com/nike", ads.Deref(rec.SourceURL))
}
