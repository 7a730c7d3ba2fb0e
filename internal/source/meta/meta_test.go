package meta

import (
	"context"
	"encoding/json"
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

const samplePage = `{
  "data": [
    {
      "id": "123",
      "ad_creative_bodies": ["Just Do It"],
      "ad_creative_link_descriptions": ["New running shoes"],
      "ad_creative_link_captions": ["Shop Now"],
      "ad_snapshot_url": "https://facebook.com/ads/library/?id=123",
      "page_name": "Nike",
      "funding_entity": "Nike, Inc.",
      "currency": "USD",
      "ad_delivery_start_time": "2024-01-02",
      "impressions": {"lower_bound": "1000", "upper_bound": "4999"},
      "spend": {"lower_bound": "100", "upper_bound": "499"}
    }
  ],
  "paging": {"cursors": {"after": "NEXT"}, "next": "https://graph.facebook.com/next"}
}`

func newTransport(client *http.Client) *collector.Transport {
	return collector.NewTransport(client,
		ratelimit.New(ratelimit.Config{RPS: 1000}),
		retry.New(retry.Config{MinDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		collector.TransportConfig{Platform: Platform},
		zap.NewNop(),
	)
}

// TestFetchRawItemsBuildsQuery checks query parameters and cursor extraction.
func TestFetchRawItemsBuildsQuery(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"search_terms":         q.Get("search_terms"),
			"after":                q.Get("after"),
			"access_token":         q.Get("access_token"),
			"ad_reached_countries": q.Get("ad_reached_countries"),
			"limit":                q.Get("limit"),
			"ad_delivery_date_min": q.Get("ad_delivery_date_min"),
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := ads.CollectionConfig{StartDate: &start}
	a := New(Config{BaseURL: srv.URL, AccessToken: "tok"}, job, newTransport(srv.Client()), zap.NewNop())
	require.Empty(t, a.Warnings())

	page, err := a.FetchRawItems(context.Background(), "nike", "CUR")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "NEXT", page.Next)
	require.Equal(t, map[string]string{
		"search_terms":         "nike",
		"after":                "CUR",
		"access_token":         "tok",
		"ad_reached_countries": `["US"]`,
		"limit":                "30",
		"ad_delivery_date_min": "2024-01-01",
	}, got)
}

// TestNewWithoutTokenWarns enters degraded mode instead of failing.
func TestNewWithoutTokenWarns(t *testing.T) {
	t.Parallel()

	a := New(Config{}, ads.CollectionConfig{}, newTransport(nil), nil)
	require.Equal(t, []string{MissingTokenWarning}, a.Warnings())
}

// TestNormalizeMapsFields covers the field mapping and engagement parsing.
func TestNormalizeMapsFields(t *testing.T) {
	t.Parallel()

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(samplePage), &env))

	a := New(Config{AccessToken: "tok"}, ads.CollectionConfig{}, newTransport(nil), nil)
	rec, err := a.Normalize(collector.RawItem{Keyword: "nike", Payload: env.Data[0]})
	require.NoError(t, err)

	require.Equal(t, "meta_123", rec.AdID)
	require.Equal(t, Platform, rec.Platform)
	require.Equal(t, "Just Do It", ads.Deref(rec.Headline))
	require.Equal(t, "New running shoes", ads.Deref(rec.BodyText))
	require.Equal(t, "Shop Now", ads.Deref(rec.CallToAction))
	require.Equal(t, "Nike", ads.Deref(rec.BrandName))
	require.Equal(t, "Nike, Inc.", ads.Deref(rec.FundingEntity))
	require.Equal(t, int64(1000), *rec.Impressions)
	require.NotNil(t, rec.SpendRange)
	require.InDelta(t, 100, *rec.SpendRange.Lower, 1e-9)
	require.InDelta(t, 499, *rec.SpendRange.Upper, 1e-9)
	require.Equal(t, "USD", rec.SpendRange.Currency)
	require.Nil(t, rec.EndDate)
}

// TestNormalizeRejectsMissingID treats an id-less payload as structural failure.
func TestNormalizeRejectsMissingID(t *testing.T) {
	t.Parallel()

	a := New(Config{AccessToken: "tok"}, ads.CollectionConfig{}, newTransport(nil), nil)
	_, err := a.Normalize(collector.RawItem{Payload: json.RawMessage(`{"page_name":"x"}`)})
	require.Error(t, err)
	_, err = a.Normalize(collector.RawItem{Payload: json.RawMessage(`[1,2]`)})
	require.Error(t, err)
}
