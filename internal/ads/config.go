package ads

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxResultsCeiling bounds the per-keyword result cap a job may request.
const MaxResultsCeiling = 100

// ErrInvalidConfig is returned when a collection job is misconfigured.
var ErrInvalidConfig = errors.New("invalid collection config")

// CollectionConfig describes a single collection job. It is treated as
// immutable once validated; use Normalized to obtain a cleaned copy.
type CollectionConfig struct {
	Platform           string
	Keywords           []string
	MaxResults         int
	StartDate          *time.Time
	EndDate            *time.Time
	RateLimitPerSecond float64
}

// Normalized returns a copy with trimmed, de-duplicated keywords and a
// lower-cased platform tag.
func (c CollectionConfig) Normalized() CollectionConfig {
	out := c
	out.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	seen := make(map[string]struct{}, len(c.Keywords))
	out.Keywords = make([]string, 0, len(c.Keywords))
	for _, kw := range c.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out.Keywords = append(out.Keywords, kw)
	}
	return out
}

// Validate enforces the job invariants before any network activity happens.
func (c CollectionConfig) Validate() error {
	var problems []error
	if strings.TrimSpace(c.Platform) == "" {
		problems = append(problems, errors.New("platform is required"))
	}
	if len(c.Keywords) == 0 {
		problems = append(problems, errors.New("at least one keyword is required"))
	}
	if c.MaxResults < 1 || c.MaxResults > MaxResultsCeiling {
		problems = append(problems, fmt.Errorf("max_results must be within [1, %d], got %d", MaxResultsCeiling, c.MaxResults))
	}
	if c.RateLimitPerSecond < 0 || math.IsNaN(c.RateLimitPerSecond) || math.IsInf(c.RateLimitPerSecond, 0) {
		problems = append(problems, fmt.Errorf("rate_limit_per_second must be a finite number >= 0, got %v", c.RateLimitPerSecond))
	}
	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		problems = append(problems, errors.New("start_date must not be after end_date"))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
