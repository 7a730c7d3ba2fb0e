package mock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/clock/system"
	"github.com/JakeFAU/adintel/internal/collector"
)

var anchor = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newAdapter(seed uint64) *Adapter {
	return New(Config{Seed: seed}, system.Frozen{At: anchor}, zap.NewNop())
}

// TestCollectMockEndToEnd runs the generator through the orchestrator.
func TestCollectMockEndToEnd(t *testing.T) {
	t.Parallel()

	orch := collector.New(zap.NewNop(), system.Frozen{At: anchor})
	res, err := orch.Run(context.Background(), newAdapter(7), ads.CollectionConfig{
		Platform:   "mock",
		Keywords:   []string{"Nike"},
		MaxResults: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	require.Equal(t, "success", res.Status())
	for _, rec := range res.Records {
		require.Equal(t, Platform, rec.Platform)
		require.NotEmpty(t, rec.AdID)
		require.Contains(t, rec.AdID, "mock_nike_")
		require.Empty(t, rec.MediaURLs)
		require.NotNil(t, rec.Headline)
		require.NotNil(t, rec.SpendRange)
		require.Equal(t, "USD", rec.SpendRange.Currency)
		require.Equal(t, ads.CollectionSuccess, rec.CollectionStatus)
	}
}

// TestFetchPaginatesUpToMaxItems pages by offset and stops at the item cap.
func TestFetchPaginatesUpToMaxItems(t *testing.T) {
	t.Parallel()

	a := New(Config{Seed: 1, MaxItems: 15, PageSize: 10}, system.Frozen{At: anchor}, nil)

	first, err := a.FetchRawItems(context.Background(), "Running Shoes", "")
	require.NoError(t, err)
	require.Len(t, first.Items, 10)
	require.Equal(t, "10", first.Next)

	second, err := a.FetchRawItems(context.Background(), "Running Shoes", first.Next)
	require.NoError(t, err)
	require.Len(t, second.Items, 5)
	require.Empty(t, second.Next)

	rec, err := a.Normalize(second.Items[0])
	require.NoError(t, err)
	require.Contains(t, rec.AdID, "mock_running-shoes_10_")

	_, err = a.FetchRawItems(context.Background(), "x", "nope")
	require.Error(t, err)
}

// TestGeneratorIsSeeded produces the same ads for the same seed.
func TestGeneratorIsSeeded(t *testing.T) {
	t.Parallel()

	p1, err := newAdapter(42).FetchRawItems(context.Background(), "Nike", "")
	require.NoError(t, err)
	p2, err := newAdapter(42).FetchRawItems(context.Background(), "Nike", "")
	require.NoError(t, err)
	require.Equal(t, p1.Items, p2.Items)
}

// TestImpressionsFollowSpend keeps impressions within the CPM band.
func TestImpressionsFollowSpend(t *testing.T) {
	t.Parallel()

	a := newAdapter(3)
	page, err := a.FetchRawItems(context.Background(), "Nike", "")
	require.NoError(t, err)
	for _, item := range page.Items {
		rec, err := a.Normalize(item)
		require.NoError(t, err)
		require.NotNil(t, rec.Impressions)
		spend := *rec.SpendRange.Lower
		imps := float64(*rec.Impressions)
		require.GreaterOrEqual(t, imps, spend/maxCPM*1000-1)
		require.LessOrEqual(t, imps, spend/minCPM*1000)

		start, err := time.Parse("2006-01-02T15:04:05-0700", ads.Deref(rec.StartDate))
		require.NoError(t, err)
		require.True(t, start.Before(anchor))
	}
}

// TestIDsUniqueAcrossAlikeKeywords keeps ids distinct when keywords share a slug.
func TestIDsUniqueAcrossAlikeKeywords(t *testing.T) {
	t.Parallel()

	a := New(Config{Seed: 9, MaxItems: 1}, system.Frozen{At: anchor}, nil)
	seen := map[string]string{}
	for n := range 400 {
		keyword := "Nike" + strings.Repeat("!", n)
		page, err := a.FetchRawItems(context.Background(), keyword, "")
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		rec, err := a.Normalize(page.Items[0])
		require.NoError(t, err)
		require.Contains(t, rec.AdID, "mock_nike_0_")
		prev, dup := seen[rec.AdID]
		require.False(t, dup, "%q and %q share %s", prev, keyword, rec.AdID)
		seen[rec.AdID] = keyword
	}
}
