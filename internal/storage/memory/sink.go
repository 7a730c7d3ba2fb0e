// Package memory keeps preprocessed records in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/adintel/internal/ads"
)

// Sink stores each job's records for inspection.
type Sink struct {
	mu   sync.RWMutex
	jobs map[string][]ads.PreprocessedRecord
	ids  []string
}

// New creates an empty in-memory sink.
func New() *Sink {
	return &Sink{jobs: make(map[string][]ads.PreprocessedRecord)}
}

// WriteRecords implements ads.RecordSink. Writing the same job twice replaces
// its records.
func (s *Sink) WriteRecords(ctx context.Context, jobID string, records []ads.PreprocessedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		s.ids = append(s.ids, jobID)
	}
	s.jobs[jobID] = append([]ads.PreprocessedRecord(nil), records...)
	return nil
}

// Records returns a copy of the records written for a job.
func (s *Sink) Records(jobID string) ([]ads.PreprocessedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return append([]ads.PreprocessedRecord(nil), records...), true
}

// Jobs lists job ids in the order they were first written.
func (s *Sink) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}
