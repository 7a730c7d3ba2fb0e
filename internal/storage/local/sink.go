// Package local writes preprocessed records to the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/adintel/internal/ads"
)

// DefaultPath is used when no output path is configured.
const DefaultPath = "data/output.json"

// JobIDPlaceholder in Path is replaced with the job id.
const JobIDPlaceholder = "{job}"

// Config captures the parameters for the file sink.
type Config struct {
	// Path is the output file. It may contain JobIDPlaceholder.
	Path string `mapstructure:"path" yaml:"path"`
}

// Sink writes a job's records as a JSON array.
type Sink struct {
	path string
}

// New creates a file sink, creating and checking the output directory.
func New(cfg Config) (*Sink, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output directory %q is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".writable_test")
	if err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Sink{path: path}, nil
}

// Path returns the file the job's records are written to.
func (s *Sink) Path(jobID string) string {
	return strings.ReplaceAll(s.path, JobIDPlaceholder, jobID)
}

// WriteRecords implements ads.RecordSink. The file is replaced atomically.
func (s *Sink) WriteRecords(ctx context.Context, jobID string, records []ads.PreprocessedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []ads.PreprocessedRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	path := s.Path(jobID)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
