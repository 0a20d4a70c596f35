// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock reports the current time in UTC. It satisfies the clock interfaces of
// the fetcher and the pipeline.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
