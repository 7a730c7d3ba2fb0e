// Package config loads and validates adintel configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/adintel/internal/ads"
)

// DateLayout is the format of collection.start_date and collection.end_date.
const DateLayout = "2006-01-02"

// Recognizer names accepted by ocr.primary and ocr.fallback.
const (
	EngineTesseract = "tesseract"
	EngineDeep      = "deep"
	EngineNone      = "none"
)

// Output kinds accepted by output.kind.
const (
	OutputFile     = "file"
	OutputGCS      = "gcs"
	OutputPostgres = "postgres"
	OutputPubSub   = "pubsub"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Collection CollectionConfig `mapstructure:"collection"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Meta       MetaConfig       `mapstructure:"meta"`
	BigSpy     BigSpyConfig     `mapstructure:"bigspy"`
	Google     GoogleConfig     `mapstructure:"google"`
	MetaWeb    MetaWebConfig    `mapstructure:"metaweb"`
	Web        WebConfig        `mapstructure:"web"`
	Mock       MockConfig       `mapstructure:"mock"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
}

// CollectionConfig describes the job to run.
type CollectionConfig struct {
	Platform           string   `mapstructure:"platform"`
	Keywords           []string `mapstructure:"keywords"`
	MaxResults         int      `mapstructure:"max_results"`
	StartDate          string   `mapstructure:"start_date"`
	EndDate            string   `mapstructure:"end_date"`
	RateLimitPerSecond float64  `mapstructure:"rate_limit_per_second"`
}

// HTTPConfig configures the shared source transport.
type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	BackoffMin    time.Duration `mapstructure:"backoff_min"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
}

// MetaConfig configures the Graph API adapter.
type MetaConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	AccessToken string   `mapstructure:"access_token"`
	PageSize    int      `mapstructure:"page_size"`
	Countries   []string `mapstructure:"countries"`
}

// BigSpyConfig configures the BigSpy adapter.
type BigSpyConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
	Platform string `mapstructure:"platform"`
}

// GoogleConfig configures the Transparency Center adapter.
type GoogleConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Region  string `mapstructure:"region"`
}

// MetaWebConfig configures the headless Ad Library adapter.
type MetaWebConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Country       string        `mapstructure:"country"`
	Scrolls       int           `mapstructure:"scrolls"`
	ScrollDelay   time.Duration `mapstructure:"scroll_delay"`
	Selectors     []string      `mapstructure:"selectors"`
	MaxContainers int           `mapstructure:"max_containers"`
}

// WebConfig configures the competitor page adapter.
type WebConfig struct {
	Selectors       []string `mapstructure:"selectors"`
	RenderJS        bool     `mapstructure:"render_js"`
	RenderThreshold int      `mapstructure:"render_threshold"`
}

// MockConfig configures the synthetic adapter. A zero seed is time based.
type MockConfig struct {
	Seed     uint64 `mapstructure:"seed"`
	MaxItems int    `mapstructure:"max_items"`
	PageSize int    `mapstructure:"page_size"`
}

// HeadlessConfig configures the browser used by the metaweb adapter.
type HeadlessConfig struct {
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	Headed      bool          `mapstructure:"headed"`
}

// OCRConfig selects and tunes the recognizers.
type OCRConfig struct {
	Primary       string        `mapstructure:"primary"`
	Fallback      string        `mapstructure:"fallback"`
	TesseractBin  string        `mapstructure:"tesseract_bin"`
	TesseractLang string        `mapstructure:"tesseract_lang"`
	TesseractPSM  int           `mapstructure:"tesseract_psm"`
	DeepEndpoint  string        `mapstructure:"deep_endpoint"`
	DeepLanguages []string      `mapstructure:"deep_languages"`
	DeepTimeout   time.Duration `mapstructure:"deep_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxImageBytes int64         `mapstructure:"max_image_bytes"`
}

// Enabled reports whether any recognizer is configured.
func (c OCRConfig) Enabled() bool {
	return c.Primary != "" && c.Primary != EngineNone
}

// PreprocessConfig tunes the preprocessing stage.
type PreprocessConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	MaxMedia          int `mapstructure:"max_media"`
	HeadlineMaxLength int `mapstructure:"headline_max_length"`
	BodyMaxLength     int `mapstructure:"body_max_length"`
}

// OutputConfig selects where preprocessed records go.
type OutputConfig struct {
	Kind                string `mapstructure:"kind"`
	Path                string `mapstructure:"path"`
	GCSBucket           string `mapstructure:"gcs_bucket"`
	GCSPrefix           string `mapstructure:"gcs_prefix"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	PostgresTable       string `mapstructure:"postgres_table"`
	PostgresCreateTable bool   `mapstructure:"postgres_create_table"`
	PubSubProject       string `mapstructure:"pubsub_project"`
	PubSubTopic         string `mapstructure:"pubsub_topic"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// AnalysisConfig holds the performer thresholds used by downstream analysis,
// expressed as multiples of the moving average.
type AnalysisConfig struct {
	HighPerformerRatio float64 `mapstructure:"high_performer_ratio"`
	LowPerformerRatio  float64 `mapstructure:"low_performer_ratio"`
}

// Option customizes the Viper instance used by Load.
type Option func(v *viper.Viper) error

// WithFlags binds command line flags to config keys. Flags only override
// when set explicitly.
func WithFlags(bindings map[string]*pflag.Flag) Option {
	return func(v *viper.Viper) error {
		for key, flag := range bindings {
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("bind flag %s: %w", key, err)
			}
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, the environment,
// and any options.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("meta.access_token", "ADINTEL_META_ACCESS_TOKEN", "META_ACCESS_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collection.platform", "mock")
	v.SetDefault("collection.max_results", 100)
	v.SetDefault("collection.rate_limit_per_second", 0.5)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.user_agent", "AdIntelligence/1.0")
	v.SetDefault("http.retry_attempts", 3)
	v.SetDefault("http.backoff_min", "2s")
	v.SetDefault("http.backoff_max", "10s")
	v.SetDefault("meta.base_url", "https://graph.facebook.com/v18.0/ads_archive")
	v.SetDefault("meta.page_size", 30)
	v.SetDefault("meta.countries", []string{"US"})
	v.SetDefault("bigspy.base_url", "https://bigspy.com/api/v1/ad/search")
	v.SetDefault("bigspy.page_size", 20)
	v.SetDefault("bigspy.max_pages", 5)
	v.SetDefault("bigspy.platform", "facebook")
	v.SetDefault("google.base_url", "https://adstransparency.google.com/")
	v.SetDefault("google.region", "US")
	v.SetDefault("web.render_js", false)
	v.SetDefault("web.render_threshold", 2048)
	v.SetDefault("metaweb.base_url", "https://www.facebook.com/ads/library/")
	v.SetDefault("metaweb.country", "US")
	v.SetDefault("metaweb.scrolls", 3)
	v.SetDefault("metaweb.scroll_delay", "3s")
	v.SetDefault("mock.max_items", 20)
	v.SetDefault("mock.page_size", 10)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "30s")
	v.SetDefault("ocr.primary", EngineTesseract)
	v.SetDefault("ocr.fallback", EngineDeep)
	v.SetDefault("ocr.tesseract_bin", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "eng")
	v.SetDefault("ocr.tesseract_psm", 6)
	v.SetDefault("ocr.deep_languages", []string{"en"})
	v.SetDefault("ocr.deep_timeout", "60s")
	v.SetDefault("ocr.fetch_timeout", "10s")
	v.SetDefault("ocr.max_image_bytes", 10<<20)
	v.SetDefault("preprocess.concurrency", 4)
	v.SetDefault("preprocess.max_media", 5)
	v.SetDefault("preprocess.headline_max_length", 500)
	v.SetDefault("preprocess.body_max_length", 5000)
	v.SetDefault("output.kind", OutputFile)
	v.SetDefault("output.path", "data/output.json")
	v.SetDefault("output.postgres_table", "preprocessed_ads")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.service_name", "adintel")
	v.SetDefault("analysis.high_performer_ratio", 1.5)
	v.SetDefault("analysis.low_performer_ratio", 0.5)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.Job(); err != nil {
		return err
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RetryAttempts < 1 {
		return fmt.Errorf("http.retry_attempts must be >= 1")
	}
	if c.HTTP.BackoffMax < c.HTTP.BackoffMin {
		return fmt.Errorf("http.backoff_max must be >= http.backoff_min")
	}
	if c.Preprocess.Concurrency < 0 {
		return fmt.Errorf("preprocess.concurrency must be >= 0")
	}
	if err := validEngine("ocr.primary", c.OCR.Primary, false); err != nil {
		return err
	}
	if err := validEngine("ocr.fallback", c.OCR.Fallback, true); err != nil {
		return err
	}
	if err := c.Output.validate(); err != nil {
		return err
	}
	if c.Analysis.LowPerformerRatio <= 0 || c.Analysis.HighPerformerRatio <= c.Analysis.LowPerformerRatio {
		return fmt.Errorf("analysis ratios must satisfy 0 < low_performer_ratio < high_performer_ratio")
	}
	return nil
}

func validEngine(key, name string, optional bool) error {
	switch name {
	case EngineTesseract, EngineDeep, EngineNone:
		return nil
	case "":
		if optional {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, %s, %s, got %q", key, EngineTesseract, EngineDeep, EngineNone, name)
}

func (o OutputConfig) validate() error {
	switch o.Kind {
	case OutputFile:
		if strings.TrimSpace(o.Path) == "" {
			return fmt.Errorf("output.path must be set for file output")
		}
	case OutputGCS:
		if o.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set for gcs output")
		}
	case OutputPostgres:
		if o.PostgresDSN == "" {
			return fmt.Errorf("output.postgres_dsn must be set for postgres output")
		}
	case OutputPubSub:
		if o.PubSubProject == "" || o.PubSubTopic == "" {
			return fmt.Errorf("output.pubsub_project and output.pubsub_topic must be set for pubsub output")
		}
	default:
		return fmt.Errorf("output.kind must be one of file, gcs, postgres, pubsub, got %q", o.Kind)
	}
	return nil
}

// Job converts the collection section into a validated, normalized job.
func (c Config) Job() (ads.CollectionConfig, error) {
	start, err := parseDate("collection.start_date", c.Collection.StartDate)
	if err != nil {
		return ads.CollectionConfig{}, err
	}
	end, err := parseDate("collection.end_date", c.Collection.EndDate)
	if err != nil {
		return ads.CollectionConfig{}, err
	}
	job := ads.CollectionConfig{
		Platform:           c.Collection.Platform,
		Keywords:           c.Collection.Keywords,
		MaxResults:         c.Collection.MaxResults,
		StartDate:          start,
		EndDate:            end,
		RateLimitPerSecond: c.Collection.RateLimitPerSecond,
	}.Normalized()
	if err := job.Validate(); err != nil {
		return ads.CollectionConfig{}, err
	}
	return job, nil
}

func parseDate(key, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must use %s: %v", ads.ErrInvalidConfig, key, DateLayout, err)
	}
	return &t, nil
}
