// Package pubsub publishes preprocessed records to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
)

// Message attribute keys set on every published record.
const (
	AttrJobID    = "job_id"
	AttrAdID     = "ad_id"
	AttrPlatform = "platform"
	AttrStatus   = "preprocessing_status"
)

// Config names the topic records are published to.
type Config struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// Publisher sends one message per record.
type Publisher struct {
	publisher *pubsub.Publisher
	logger    *zap.Logger
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{publisher: publisher, logger: logger}
}

// WriteRecords implements ads.RecordSink. Every record is published before
// the results are awaited; the first failure is reported along with the count.
func (p *Publisher) WriteRecords(ctx context.Context, jobID string, records []ads.PreprocessedRecord) error {
	if p.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}

	results := make([]*pubsub.PublishResult, 0, len(records))
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", record.AdID, err)
		}
		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				AttrJobID:    jobID,
				AttrAdID:     record.AdID,
				AttrPlatform: record.Platform,
				AttrStatus:   string(record.Quality.PreprocessingStatus),
			},
		}
		otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})
		results = append(results, p.publisher.Publish(ctx, msg))
	}

	var errs []error
	for i, result := range results {
		id, err := result.Get(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish record %s: %w", records[i].AdID, err))
			continue
		}
		p.logger.Debug("record published", zap.String("ad_id", records[i].AdID), zap.String("message_id", id))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d records failed to publish: %w", len(errs), len(records), errors.Join(errs...))
	}
	return nil
}

// Close flushes pending messages and stops the publisher.
func (p *Publisher) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
