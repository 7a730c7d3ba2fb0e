package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageKeywordError Stage = "KEYWORD_ERROR"
	StageItemSkipped  Stage = "ITEM_SKIPPED"
	StageRecordDone   Stage = "RECORD_DONE"
)

// Event captures one pipeline milestone.
type Event struct {
	JobID    string
	TS       time.Time
	Stage    Stage
	Platform string
	// Keyword scopes keyword and item events.
	Keyword string
	// AdID and Status describe a preprocessed record.
	AdID   string
	Status string
	// Records carries the record count on job completion.
	Records int
	// Dur is the job runtime or the record's preprocessing time.
	Dur time.Duration
	// Note holds low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageKeywordError, StageItemSkipped:
		if e.Keyword == "" {
			return fmt.Errorf("%s requires keyword", e.Stage)
		}
	case StageRecordDone:
		if e.AdID == "" || e.Status == "" {
			return errors.New("record done requires ad id and status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
