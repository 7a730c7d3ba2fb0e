package progress

import (
	"context"
	"fmt"
	"time"
)

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit counts records by preprocessing status.
func ExampleHub_Emit() {
	counts := map[string]int{}
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageRecordDone {
				counts[evt.Status]++
			}
		}
		return nil
	}))

	ts := time.Unix(0, 0)
	hub.Emit(Event{JobID: "job-1", TS: ts, Stage: StageRecordDone, AdID: "mock_1", Status: "success"})
	hub.Emit(Event{JobID: "job-1", TS: ts, Stage: StageRecordDone, AdID: "mock_2", Status: "failed"})
	hub.Emit(Event{JobID: "job-1", TS: ts, Stage: StageRecordDone, AdID: "mock_3", Status: "success"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("success=%d failed=%d\n", counts["success"], counts["failed"])
	// Output:
	// success=2 failed=1
}
