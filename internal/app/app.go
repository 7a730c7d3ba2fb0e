// Package app builds the long-lived services a collection run needs from the
// loaded configuration and tears them down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/clock/system"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/config"
	"github.com/JakeFAU/adintel/internal/fetcher/headless"
	"github.com/JakeFAU/adintel/internal/id/uuid"
	"github.com/JakeFAU/adintel/internal/job"
	"github.com/JakeFAU/adintel/internal/modelcache"
	"github.com/JakeFAU/adintel/internal/policy/retry"
	"github.com/JakeFAU/adintel/internal/preprocess"
	"github.com/JakeFAU/adintel/internal/preprocess/ocr"
	"github.com/JakeFAU/adintel/internal/progress"
	"github.com/JakeFAU/adintel/internal/progress/sinks"
	"github.com/JakeFAU/adintel/internal/publisher/pubsub"
	"github.com/JakeFAU/adintel/internal/source"
	"github.com/JakeFAU/adintel/internal/source/bigspy"
	"github.com/JakeFAU/adintel/internal/source/google"
	"github.com/JakeFAU/adintel/internal/source/meta"
	"github.com/JakeFAU/adintel/internal/source/metaweb"
	"github.com/JakeFAU/adintel/internal/source/mock"
	"github.com/JakeFAU/adintel/internal/source/web"
	"github.com/JakeFAU/adintel/internal/storage/gcs"
	"github.com/JakeFAU/adintel/internal/storage/local"
	"github.com/JakeFAU/adintel/internal/storage/postgres"
)

// App holds the services shared by a run.
type App struct {
	logger  *zap.Logger
	runner  *job.Runner
	sink    ads.RecordSink
	models  *modelcache.Cache[*ocr.Reader]
	closers []func() error
}

// Option adjusts how New assembles the App.
type Option func(*options)

type options struct {
	sink       ads.RecordSink
	deps       source.Deps
	registerer prometheus.Registerer
}

const progressCloseTimeout = 5 * time.Second

// WithSink replaces the configured output.
func WithSink(sink ads.RecordSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithSourceDeps injects source collaborators such as a page fetcher.
func WithSourceDeps(deps source.Deps) Option {
	return func(o *options) { o.deps = deps }
}

// WithRegisterer sets where progress collectors are registered when metrics
// are enabled.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds the App. It fails fast when a configured service cannot start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		logger: logger,
		models: modelcache.New[*ocr.Reader](logger.Named("models")),
	}
	a.closers = append(a.closers, a.models.Close)

	sink := o.sink
	if sink == nil {
		var err error
		sink, err = a.newSink(ctx, cfg.Output)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.sink = sink

	extractor, err := a.newExtractor(cfg.OCR)
	if err != nil {
		a.Close()
		return nil, err
	}

	clock := o.deps.Clock
	if clock == nil {
		clock = system.New()
	}
	deps := o.deps
	deps.Clock = clock
	deps.Logger = logger
	settings := SourceSettings(cfg)

	hub, err := a.newProgressHub(cfg, o.registerer)
	if err != nil {
		a.Close()
		return nil, err
	}

	var pre preprocess.Extractor
	if extractor != nil {
		pre = extractor
	}
	a.runner = job.New(
		func(j ads.CollectionConfig) (collector.SourceAdapter, error) {
			return source.New(j, settings, deps)
		},
		collector.New(logger.Named("collector"), clock),
		preprocess.New(preprocess.Config{
			Concurrency:       cfg.Preprocess.Concurrency,
			MaxMedia:          cfg.Preprocess.MaxMedia,
			HeadlineMaxLength: cfg.Preprocess.HeadlineMaxLength,
			BodyMaxLength:     cfg.Preprocess.BodyMaxLength,
		}, pre, logger.Named("preprocess")),
		sink,
		uuid.New(),
		clock,
		logger.Named("job"),
	).WithProgress(hub)
	return a, nil
}

func (a *App) newProgressHub(cfg config.Config, reg prometheus.Registerer) (*progress.Hub, error) {
	consumers := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}
	if cfg.Metrics.Addr != "" {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("init progress metrics: %w", err)
		}
		consumers = append(consumers, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")}, consumers...)
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), progressCloseTimeout)
		defer cancel()
		return hub.Close(ctx)
	})
	return hub, nil
}

// Runner returns the job runner.
func (a *App) Runner() *job.Runner {
	return a.runner
}

// Sink returns the output records are written to.
func (a *App) Sink() ads.RecordSink {
	return a.sink
}

// Close releases every service in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) newSink(ctx context.Context, cfg config.OutputConfig) (ads.RecordSink, error) {
	switch cfg.Kind {
	case config.OutputFile:
		sink, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("init file output: %w", err)
		}
		a.logger.Info("using file output", zap.String("path", cfg.Path))
		return sink, nil
	case config.OutputGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		sink, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs output: %w", err)
		}
		a.logger.Info("using gcs output", zap.String("bucket", cfg.GCSBucket))
		return sink, nil
	case config.OutputPostgres:
		sink, err := postgres.New(ctx, postgres.Config{
			DSN:         cfg.PostgresDSN,
			Table:       cfg.PostgresTable,
			CreateTable: cfg.PostgresCreateTable,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres output: %w", err)
		}
		a.closers = append(a.closers, sink.Close)
		a.logger.Info("using postgres output", zap.String("table", cfg.PostgresTable))
		return sink, nil
	case config.OutputPubSub:
		client, err := pubsubv2.NewClient(ctx, cfg.PubSubProject)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		publisher := pubsub.New(client.Publisher(cfg.PubSubTopic), a.logger.Named("pubsub"))
		a.closers = append(a.closers, publisher.Close)
		a.logger.Info("using pubsub output", zap.String("topic", cfg.PubSubTopic))
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown output kind: %s", cfg.Kind)
	}
}

// newExtractor returns nil when OCR is disabled.
func (a *App) newExtractor(cfg config.OCRConfig) (*ocr.Engine, error) {
	if !cfg.Enabled() {
		a.logger.Info("ocr disabled")
		return nil, nil
	}
	primary := a.recognizer(cfg.Primary, cfg)
	if primary == nil {
		return nil, errors.New("ocr.primary must name a recognizer")
	}
	var fallback ocr.Recognizer
	if cfg.Fallback != cfg.Primary {
		fallback = a.recognizer(cfg.Fallback, cfg)
	}
	images := ocr.NewHTTPSource(&http.Client{Timeout: cfg.FetchTimeout}, cfg.MaxImageBytes)
	engine, err := ocr.New(images, primary, fallback, a.logger.Named("ocr"))
	if err != nil {
		return nil, fmt.Errorf("init ocr: %w", err)
	}
	return engine, nil
}

func (a *App) recognizer(name string, cfg config.OCRConfig) ocr.Recognizer {
	switch name {
	case config.EngineTesseract:
		return ocr.NewTesseract(ocr.TesseractConfig{
			Bin:  cfg.TesseractBin,
			Lang: cfg.TesseractLang,
			PSM:  cfg.TesseractPSM,
		}, nil)
	case config.EngineDeep:
		return ocr.NewDeep(ocr.DeepConfig{
			Endpoint:  cfg.DeepEndpoint,
			Languages: cfg.DeepLanguages,
			Timeout:   cfg.DeepTimeout,
		}, nil, a.models, a.logger.Named("ocr.deep"))
	default:
		return nil
	}
}

// SourceSettings maps the configuration onto the adapter settings.
func SourceSettings(cfg config.Config) source.Settings {
	return source.Settings{
		HTTP: source.HTTPSettings{
			Timeout:   cfg.HTTP.Timeout,
			UserAgent: cfg.HTTP.UserAgent,
			Retry: retry.Config{
				MaxAttempts: cfg.HTTP.RetryAttempts,
				MinDelay:    cfg.HTTP.BackoffMin,
				MaxDelay:    cfg.HTTP.BackoffMax,
			},
		},
		Meta: meta.Config{
			BaseURL:     cfg.Meta.BaseURL,
			AccessToken: cfg.Meta.AccessToken,
			PageSize:    cfg.Meta.PageSize,
			Countries:   cfg.Meta.Countries,
		},
		BigSpy: bigspy.Config{
			BaseURL:  cfg.BigSpy.BaseURL,
			PageSize: cfg.BigSpy.PageSize,
			MaxPages: cfg.BigSpy.MaxPages,
			Network:  cfg.BigSpy.Platform,
		},
		Google: google.Config{
			BaseURL: cfg.Google.BaseURL,
			Region:  cfg.Google.Region,
		},
		MetaWeb: metaweb.Config{
			BaseURL:       cfg.MetaWeb.BaseURL,
			Country:       cfg.MetaWeb.Country,
			Scrolls:       cfg.MetaWeb.Scrolls,
			ScrollDelay:   cfg.MetaWeb.ScrollDelay,
			Selectors:     cfg.MetaWeb.Selectors,
			MaxContainers: cfg.MetaWeb.MaxContainers,
		},
		Web: web.Config{
			Selectors:       cfg.Web.Selectors,
			RenderJS:        cfg.Web.RenderJS,
			RenderThreshold: cfg.Web.RenderThreshold,
		},
		Mock: mock.Config{
			Seed:     cfg.Mock.Seed,
			MaxItems: cfg.Mock.MaxItems,
			PageSize: cfg.Mock.PageSize,
		},
		Headless: headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
			Headed:            cfg.Headless.Headed,
		},
	}
}
