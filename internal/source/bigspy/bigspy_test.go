package bigspy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/policy/ratelimit"
	"github.com/JakeFAU/adintel/internal/policy/retry"
)

func newTransport(client *http.Client) *collector.Transport {
	return collector.NewTransport(client,
		ratelimit.New(ratelimit.Config{RPS: 1000}),
		retry.New(retry.Config{MinDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		collector.TransportConfig{Platform: Platform},
		zap.NewNop(),
	)
}

// TestFetchRawItemsPaginatesUpToCeiling stops after MaxPages.
func TestFetchRawItemsPaginatesUpToCeiling(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "facebook", r.URL.Query().Get("platform"))
		require.Equal(t, "20", r.URL.Query().Get("page_size"))
		_, _ = fmt.Fprintf(w, `{"data":[{"id":"p%s"}]}`, r.URL.Query().Get("page"))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, MaxPages: 2}, newTransport(srv.Client()), nil)

	page, err := a.FetchRawItems(context.Background(), "nike", "")
	require.NoError(t, err)
	require.Equal(t, "2", page.Next)
	require.JSONEq(t, `{"id":"p1"}`, string(page.Items[0].Payload))

	page, err = a.FetchRawItems(context.Background(), "nike", page.Next)
	require.NoError(t, err)
	require.Empty(t, page.Next)

	_, err = a.FetchRawItems(context.Background(), "nike", "zero")
	require.Error(t, err)
}

// TestFetchRawItemsEmptyPageEnds returns no cursor when the source runs dry.
func TestFetchRawItemsEmptyPageEnds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL}, newTransport(srv.Client()), nil)
	page, err := a.FetchRawItems(context.Background(), "nike", "")
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Empty(t, page.Next)
}

// TestNormalize maps a search hit.
func TestNormalize(t *testing.T) {
	t.Parallel()

	a := New(Config{}, newTransport(nil), nil)
	raw := json.RawMessage(`{
		"id": 987,
		"platform": "instagram",
		"url": "https://bigspy.com/ad/987",
		"title": "Summer Sale",
		"description": "Up to 50% off",
		"cta": "Shop Now",
		"images": ["https://cdn.example.com/a.jpg", ""],
		"landing_page": "https://shop.example.com",
		"advertiser": "Adidas",
		"first_seen": "2024-03-01",
		"impressions": 5400
	}`)
	rec, err := a.Normalize(collector.RawItem{Payload: raw})
	require.NoError(t, err)
	require.Equal(t, "bigspy_987", rec.AdID)
	require.Equal(t, Platform, rec.Platform)
	require.Equal(t, []string{"https://cdn.example.com/a.jpg"}, rec.MediaURLs)
	require.Equal(t, "Adidas", ads.Deref(rec.BrandName))
	require.Equal(t, "Adidas", ads.Deref(rec.PageName))
	require.Equal(t, int64(5400), *rec.Impressions)
	require.Nil(t, rec.EndDate)

	_, err = a.Normalize(collector.RawItem{Payload: json.RawMessage(`{"title":"no id"}`)})
	require.Error(t, err)
}
