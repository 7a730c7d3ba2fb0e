package ads

import (
	"context"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher derives stable identifiers for ads whose source has none.
type Hasher interface {
	Fingerprint(parts ...string) string
}

// RecordSink persists or forwards a job's preprocessed records.
type RecordSink interface {
	WriteRecords(ctx context.Context, jobID string, records []PreprocessedRecord) error
}
