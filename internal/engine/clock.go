// Package engine implements the task manager: a priority-ordered queue,
// a bounded worker pool, task lifecycle transitions, cooperative
// cancellation, long-poll wakeups, and TTL cleanup of terminal records.
package engine

import "time"

// Clock abstracts wall time and monotonic time so tests can control
// both without real sleeps.
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}

// SystemClock is the production Clock, backed by the runtime.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

func (c *SystemClock) Monotonic() time.Duration { return time.Since(c.start) }
