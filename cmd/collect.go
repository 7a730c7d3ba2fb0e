package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/app"
	"github.com/JakeFAU/adintel/internal/config"
	"github.com/JakeFAU/adintel/internal/logging"
	"github.com/JakeFAU/adintel/internal/metrics"
	"github.com/JakeFAU/adintel/internal/telemetry"
)

// collectFlags maps config keys to the collect command's flag names.
var collectFlags = map[string]string{
	"collection.platform":              "platform",
	"collection.keywords":              "keywords",
	"collection.max_results":           "max-results",
	"collection.start_date":            "start-date",
	"collection.end_date":              "end-date",
	"collection.rate_limit_per_second": "rate-limit",
	"output.kind":                      "output-kind",
	"output.path":                      "output",
	"ocr.primary":                      "ocr",
	"metrics.addr":                     "metrics-addr",
	"logging.development":              "dev",
	"logging.level":                    "log-level",
}

func newCollectCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs one collection job and writes the preprocessed ads",
		Example: `  adintel collect --platform mock --keywords Nike,Adidas --max-results 20
  adintel collect --platform meta --keywords "running shoes" --output data/meta.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, *cfgFile)
		},
	}
	flags := cmd.Flags()
	flags.String("platform", "", "source platform (see `adintel platforms`)")
	flags.StringSlice("keywords", nil, "comma separated search keywords, or URLs for the web platform")
	flags.Int("max-results", 0, "maximum records for the job (1-100)")
	flags.String("start-date", "", "earliest delivery date, YYYY-MM-DD")
	flags.String("end-date", "", "latest delivery date, YYYY-MM-DD")
	flags.Float64("rate-limit", 0, "source requests per second (0 disables throttling)")
	flags.String("output-kind", "", "output sink: file, gcs, postgres or pubsub")
	flags.String("output", "", "output file for the file sink, {job} expands to the job id")
	flags.String("ocr", "", "primary OCR engine: tesseract, deep or none")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.Bool("dev", false, "human readable development logging")
	flags.String("log-level", "", "minimum log level: debug, info, warn or error")
	return cmd
}

func bindings(flags *pflag.FlagSet) map[string]*pflag.Flag {
	out := make(map[string]*pflag.Flag, len(collectFlags))
	for key, name := range collectFlags {
		out[key] = flags.Lookup(name)
	}
	return out
}

func runCollect(cmd *cobra.Command, cfgFile string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cfgFile, config.WithFlags(bindings(cmd.Flags())))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	jobCfg, err := cfg.Job()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, logger)
		defer stopMetrics()
	}

	appInstance, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer appInstance.Close()

	res, err := appInstance.Runner().Run(ctx, jobCfg)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s: %s\n", res.JobID, res.Status)
	fmt.Fprintf(out, "collected %d records (%d skipped, %d keyword errors)\n",
		len(res.Collection.Records), len(res.Collection.Skipped), len(res.Collection.KeywordErrors))
	fmt.Fprintf(out, "preprocessed %d records (%d failed)\n", len(res.Records), res.Failed())
	for _, warning := range res.Collection.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
}
