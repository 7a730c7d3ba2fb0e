package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpSlots(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	browser, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer browser.Close() //nolint:errcheck // allocator cancel never fails
	require.Equal(t, 2, cap(browser.slots))
	require.Equal(t, defaultNavTimeout, browser.cfg.NavigationTimeout)
}

func TestRenderHonoursCanceledSlotWait(t *testing.T) {
	t.Parallel()

	browser := &Browser{slots: make(chan struct{}, 1)}
	browser.slots <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := browser.Render(ctx, Request{URL: "https://example.com"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNavTimeoutIncludesScrolling(t *testing.T) {
	t.Parallel()

	browser := &Browser{}
	require.Equal(t, 45*time.Second+6*time.Second, browser.navTimeout(Request{Scrolls: 3}))

	browser.cfg.NavigationTimeout = time.Second
	require.Equal(t, 2*time.Second, browser.navTimeout(Request{Scrolls: 2, ScrollDelay: 500 * time.Millisecond}))
}

func TestActionsScheduleScrolls(t *testing.T) {
	t.Parallel()

	var out page
	actions := (&Browser{}).actions(Request{URL: "https://example.com", Scrolls: 3}, &out)
	// prepare, navigate, wait, settle, 3x(scroll, sleep), location, html
	require.Len(t, actions, 4+3*2+2)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "X-One": {"1"}, "X-None": {}}
	netHeaders := toNetworkHeaders(src)
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	require.Equal(t, "1", netHeaders["X-One"])
	require.NotContains(t, netHeaders, "X-None")
}

func TestDocumentKeepsFirstResponse(t *testing.T) {
	t.Parallel()

	doc := &document{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/iframe"},
	})
	resp := doc.response("https://req", "")
	require.Equal(t, 404, resp.StatusCode)
	require.Equal(t, "abc", resp.Headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", resp.URL)

	resp = (&document{}).response("https://req", "https://final")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://final", resp.URL)
	require.NotNil(t, resp.Headers)
}

func TestNoopRendererDisabled(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Render(context.Background(), Request{})
	require.ErrorIs(t, err, ErrRendererDisabled)
}
