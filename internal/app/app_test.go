package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/clock/system"
	"github.com/JakeFAU/adintel/internal/config"
	"github.com/JakeFAU/adintel/internal/job"
	"github.com/JakeFAU/adintel/internal/source"
	"github.com/JakeFAU/adintel/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Collection: config.CollectionConfig{Platform: "mock", Keywords: []string{"Nike"}, MaxResults: 3},
		HTTP:       config.HTTPConfig{Timeout: time.Second, RetryAttempts: 1},
		Mock:       config.MockConfig{Seed: 42},
		OCR:        config.OCRConfig{Primary: config.EngineNone},
		Output:     config.OutputConfig{Kind: config.OutputFile, Path: filepath.Join(t.TempDir(), "out", "{job}.json")},
		Analysis:   config.AnalysisConfig{HighPerformerRatio: 1.5, LowPerformerRatio: 0.5},
	}
}

func TestAppRunsMockJobToFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	jobCfg, err := cfg.Job()
	require.NoError(t, err)
	res, err := a.Runner().Run(context.Background(), jobCfg)
	require.NoError(t, err)
	require.Equal(t, job.StatusSuccess, res.Status)

	path := filepath.Join(filepath.Dir(cfg.Output.Path), res.JobID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var written []ads.PreprocessedRecord
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 3)
	for _, rec := range written {
		require.Equal(t, "mock", rec.Platform)
		require.Equal(t, ads.PreprocessingSuccess, rec.Quality.PreprocessingStatus)
	}
}

func TestAppWithInjectedSink(t *testing.T) {
	t.Parallel()

	sink := memory.New()
	frozen := system.Frozen{At: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	a, err := New(context.Background(), testConfig(t), nil, WithSink(sink), WithSourceDeps(source.Deps{Clock: frozen}))
	require.NoError(t, err)
	defer a.Close()
	require.Same(t, sink, a.Sink())

	res, err := a.Runner().Run(context.Background(), ads.CollectionConfig{Platform: "mock", Keywords: []string{"Puma"}, MaxResults: 2})
	require.NoError(t, err)

	stored, ok := sink.Records(res.JobID)
	require.True(t, ok)
	require.Len(t, stored, 2)
	require.Equal(t, frozen.At, stored[0].CollectedAt)
}

func TestAppExportsProgressMetrics(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Metrics.Addr = ":0"
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), cfg, zap.NewNop(), WithSink(memory.New()), WithRegisterer(reg))
	require.NoError(t, err)

	_, err = a.Runner().Run(context.Background(), ads.CollectionConfig{Platform: "mock", Keywords: []string{"Nike"}, MaxResults: 2})
	require.NoError(t, err)
	a.Close()

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	require.Equal(t, 1.0, values["adintel_progress_jobs_started_total"])
	require.Equal(t, 1.0, values["adintel_progress_jobs_completed_total"])
	require.Equal(t, 2.0, values["adintel_progress_records_total"])
}

func TestNewRejectsUnknownOutput(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Output.Kind = "s3"
	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown output kind")
}

func TestNewExtractor(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), nil, WithSink(memory.New()))
	require.NoError(t, err)
	defer a.Close()

	engine, err := a.newExtractor(config.OCRConfig{Primary: config.EngineNone})
	require.NoError(t, err)
	require.Nil(t, engine)

	engine, err = a.newExtractor(config.OCRConfig{Primary: config.EngineTesseract, Fallback: config.EngineDeep})
	require.NoError(t, err)
	require.NotNil(t, engine)

	require.Nil(t, a.recognizer(config.EngineNone, config.OCRConfig{}))
	require.NotNil(t, a.recognizer(config.EngineDeep, config.OCRConfig{}))
}

func TestSourceSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.HTTP.UserAgent = "agent"
	cfg.HTTP.RetryAttempts = 4
	cfg.HTTP.BackoffMin = time.Second
	cfg.HTTP.BackoffMax = 3 * time.Second
	cfg.Meta.AccessToken = "token"
	cfg.BigSpy.Platform = "tiktok"
	cfg.Headless.NavTimeout = 9 * time.Second

	s := SourceSettings(cfg)
	require.Equal(t, "agent", s.HTTP.UserAgent)
	require.Equal(t, 4, s.HTTP.Retry.MaxAttempts)
	require.Equal(t, 3*time.Second, s.HTTP.Retry.MaxDelay)
	require.Equal(t, "token", s.Meta.AccessToken)
	require.Equal(t, "tiktok", s.BigSpy.Network)
	require.Equal(t, uint64(42), s.Mock.Seed)
	require.Equal(t, "agent", s.Headless.UserAgent)
	require.Equal(t, 9*time.Second, s.Headless.NavigationTimeout)
}
