package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, collectedRecordsTotal)
	require.NotNil(t, ocrAttemptsTotal)

	before := testutil.ToFloat64(collectedRecordsTotal.WithLabelValues("test", "normalized"))
	ObserveCollected("test", "normalized")
	require.InDelta(t, before+1, testutil.ToFloat64(collectedRecordsTotal.WithLabelValues("test", "normalized")), 0.0001)
}

func TestObserveHelpers(t *testing.T) {
	ObserveFetch("test", "ok")
	ObserveRetry("test")
	ObserveRateLimitDelay("test", 10*time.Millisecond)
	ObservePreprocessed("success", 5*time.Millisecond)
	ObserveOCR("tesseract", "success")
	ObserveJob("success")
	IncActiveWorkers()
	DecActiveWorkers()

	require.GreaterOrEqual(t, testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("test")), 1.0)
	require.GreaterOrEqual(t, testutil.CollectAndCount(preprocessDurationSeconds), 1)
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(body), "http_requests_total")

	require.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 1.0)
}
