package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/metrics"
	"github.com/JakeFAU/adintel/internal/policy/ratelimit"
	"github.com/JakeFAU/adintel/internal/policy/retry"
)

// DefaultTimeout bounds a single source request.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 16 << 20

// Transport applies a collector's rate limit and retry policy to outbound
// requests. Every attempt, including retries, waits on the limiter.
type Transport struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	policy    *retry.Policy
	userAgent string
	platform  string
	logger    *zap.Logger
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	Platform  string
	UserAgent string
}

// NewTransport wires a limiter and policy around client. A nil client gets a
// default one with DefaultTimeout.
func NewTransport(
	client *http.Client,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	cfg TransportConfig,
	logger *zap.Logger,
) *Transport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{Label: cfg.Platform})
	}
	if policy == nil {
		policy = retry.New(retry.Config{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		client:    client,
		limiter:   limiter,
		policy:    policy,
		userAgent: cfg.UserAgent,
		platform:  cfg.Platform,
		logger:    logger,
	}
}

// Guard runs op under the rate limiter and retry policy and reports how many
// retries were needed.
func (t *Transport) Guard(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	attempt := 0
	retries, err := t.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.ObserveRetry(t.platform)
			t.logger.Warn("retrying source request",
				zap.String("platform", t.platform),
				zap.Int("attempt", attempt),
			)
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		return op(ctx)
	})
	if err != nil {
		return retries, fmt.Errorf("%s request: %w", t.platform, err)
	}
	return retries, nil
}

// GetJSON issues a GET to endpoint with query and decodes the JSON body into
// out. Rate limiting and server errors are retried; other statuses are not.
func (t *Transport) GetJSON(ctx context.Context, endpoint string, query url.Values, out any) (int, error) {
	target := endpoint
	if len(query) > 0 {
		target = endpoint + "?" + query.Encode()
	}
	return t.Guard(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if t.userAgent != "" {
			req.Header.Set("User-Agent", t.userAgent)
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return retry.NewStatusError(resp.StatusCode, endpoint)
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
