package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/modelcache"
	"github.com/JakeFAU/adintel/internal/policy/retry"
)

// DeepName identifies the deep-learning recognizer.
const DeepName = "deep"

// DefaultDeepTimeout bounds one inference or model load request.
const DefaultDeepTimeout = 60 * time.Second

const maxDeepResponseBytes = 4 << 20

// DeepConfig points at an EasyOCR compatible inference server.
type DeepConfig struct {
	Endpoint  string
	Languages []string
	Timeout   time.Duration
}

// Reader is a model handle held by the inference server. It is created on
// first use and released when the model cache closes.
type Reader struct {
	ID       string
	endpoint string
	client   *http.Client
}

// Close releases the server side reader.
func (r *Reader) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.endpoint+"/v1/readers/"+url.PathEscape(r.ID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("release reader: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return retry.NewStatusError(resp.StatusCode, r.endpoint)
	}
	return nil
}

// Deep is the slower, more accurate recognizer. The reader model is loaded
// lazily through a shared cache, so every worker reuses one handle.
type Deep struct {
	cfg    DeepConfig
	client *http.Client
	models *modelcache.Cache[*Reader]
	logger *zap.Logger
}

// NewDeep builds a Deep recognizer over models.
func NewDeep(cfg DeepConfig, client *http.Client, models *modelcache.Cache[*Reader], logger *zap.Logger) *Deep {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeepTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if models == nil {
		models = modelcache.New[*Reader](logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deep{cfg: cfg, client: client, models: models, logger: logger}
}

// Name implements Recognizer.
func (d *Deep) Name() string { return DeepName }

type region struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize implements Recognizer. Confidence is the mean over regions.
func (d *Deep) Recognize(ctx context.Context, img *image.Gray) Result {
	if d.cfg.Endpoint == "" {
		return failed(DeepName, fmt.Errorf("%w: no inference endpoint configured", ErrEngineUnavailable))
	}
	reader, err := d.models.Load(ctx, d.modelKey(), d.loadReader)
	if err != nil {
		return failed(DeepName, err)
	}
	data, err := encodePNG(img)
	if err != nil {
		return failed(DeepName, err)
	}

	var out struct {
		Results []region `json:"results"`
	}
	endpoint := d.cfg.Endpoint + "/v1/readers/" + url.PathEscape(reader.ID) + "/readtext"
	if err := d.post(ctx, endpoint, "image/png", data, &out); err != nil {
		return failed(DeepName, fmt.Errorf("read text: %w", err))
	}

	texts := make([]string, 0, len(out.Results))
	var sum float64
	for _, r := range out.Results {
		if t := strings.TrimSpace(r.Text); t != "" {
			texts = append(texts, t)
			sum += r.Confidence
		}
	}
	if len(texts) == 0 {
		return Result{Engine: DeepName, Success: true}
	}
	return Result{
		Text:       strings.Join(texts, " "),
		Confidence: min(max(sum/float64(len(texts)), 0), 1),
		Engine:     DeepName,
		Success:    true,
	}
}

func (d *Deep) modelKey() string {
	return DeepName + ":" + strings.Join(d.cfg.Languages, "+")
}

func (d *Deep) loadReader(ctx context.Context) (*Reader, error) {
	body, err := json.Marshal(map[string][]string{"languages": d.cfg.Languages})
	if err != nil {
		return nil, fmt.Errorf("encode reader request: %w", err)
	}
	var out struct {
		ReaderID string `json:"reader_id"`
	}
	if err := d.post(ctx, d.cfg.Endpoint+"/v1/readers", "application/json", body, &out); err != nil {
		return nil, fmt.Errorf("create reader: %w", err)
	}
	if out.ReaderID == "" {
		return nil, fmt.Errorf("create reader: empty reader id")
	}
	d.logger.Info("ocr reader ready",
		zap.String("reader_id", out.ReaderID),
		zap.Strings("languages", d.cfg.Languages),
	)
	return &Reader{ID: out.ReaderID, endpoint: d.cfg.Endpoint, client: d.client}, nil
}

func (d *Deep) post(ctx context.Context, endpoint, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return retry.NewStatusError(resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDeepResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
