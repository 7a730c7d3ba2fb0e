// Package progress carries job milestones from the pipeline to pluggable
// sinks. Events are batched on a background goroutine so emitters never
// block on logging or metrics.
package progress
