// Package gcs writes preprocessed records to Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/adintel/internal/ads"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Sink uploads each job's records as one JSON object.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object the job's records are written to.
func (s *Sink) ObjectName(jobID string) string {
	name := jobID + ".json"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// URI returns the gs:// location of the job's records.
func (s *Sink) URI(jobID string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.ObjectName(jobID))
}

// WriteRecords implements ads.RecordSink.
func (s *Sink) WriteRecords(ctx context.Context, jobID string, records []ads.PreprocessedRecord) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	if records == nil {
		records = []ads.PreprocessedRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	writer := s.client.Bucket(s.bucket).Object(s.ObjectName(jobID)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
