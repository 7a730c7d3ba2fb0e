// Package system provides wall and frozen clocks.
package system

import "time"

// Clock implements ads.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Frozen always reports the same instant. Tests use it to pin collected_at
// and detection timestamps.
type Frozen struct {
	At time.Time
}

// Now returns the frozen instant.
func (f Frozen) Now() time.Time {
	return f.At
}
