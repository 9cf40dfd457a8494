// Package jobs holds the registered executors (spec.md §4.2): the
// simulated-duration decorator and the four reference job bodies.
package jobs

import (
	"strconv"
	"time"

	"github.com/flowrunner/taskrunner/internal/engine"
)

// Body is the real work behind a simulated-duration job: it receives
// the already-validated parameters and returns a result or a
// *engine.TaskFailedError.
type Body func(parameters map[string]interface{}) (interface{}, error)

// WithSimulatedDuration wraps body in the decorator spec.md §4.2
// describes: it imposes a fixed nominal duration before the real body
// ever runs, publishing progress and observing cooperative
// cancellation at every tick.
func WithSimulatedDuration(clock engine.Clock, duration time.Duration, tick time.Duration, body Body) engine.Executor {
	totalSeconds := int(duration / time.Second)
	if totalSeconds < 1 {
		totalSeconds = 1
	}

	return func(rec *engine.TaskRecord, parameters map[string]interface{}) (interface{}, error) {
		rec.EstTotalSeconds = &totalSeconds
		if !rec.HasStarted {
			rec.StartedMonotonic = clock.Monotonic()
			rec.HasStarted = true
		}
		startedAt := clock.Now()

		initialEta := totalSeconds
		rec.UpdateProgress(clock.Now(), 0, engine.ProgressInfo{
			Message:    "100% remaining",
			StartedAt:  &startedAt,
			EtaSeconds: &initialEta,
		})

		for {
			elapsed := clock.Monotonic() - rec.StartedMonotonic
			elapsedSeconds := int(elapsed / time.Second)
			remaining := totalSeconds - elapsedSeconds
			if remaining < 0 {
				remaining = 0
			}
			percentCompleted := elapsedSeconds * 100 / totalSeconds
			if percentCompleted > 100 {
				percentCompleted = 100
			}
			percentRemaining := 100 - percentCompleted
			if percentRemaining < 0 {
				percentRemaining = 0
			}

			if rec.IsCancelRequested() {
				rec.MarkCancelledDuringProcessing(clock.Now(), percentCompleted, &startedAt)
				return nil, engine.ErrCancelled
			}

			eta := remaining
			rec.UpdateProgress(clock.Now(), percentCompleted, engine.ProgressInfo{
				Message:    strconv.Itoa(percentRemaining) + "% remaining",
				StartedAt:  &startedAt,
				EtaSeconds: &eta,
			})

			if elapsed >= duration {
				break
			}
			time.Sleep(tick)
		}

		return body(parameters)
	}
}
