// Package collector drives a SourceAdapter through every keyword of a job,
// following pagination cursors until the per-keyword cap is reached and
// isolating per-item normalization failures.
package collector
