package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrunner/taskrunner/internal/engine"
	"github.com/flowrunner/taskrunner/internal/platform/logger"
)

// noopLogger discards everything; these tests don't assert on log output.
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}
func (noopLogger) Fatal(msg string, fields ...interface{}) {}
func (noopLogger) WithFields(fields map[string]interface{}) logger.Logger { return noopLogger{} }
func (noopLogger) WithContext(ctx context.Context) logger.Logger          { return noopLogger{} }

// fakeClock is a manually advanced engine.Clock driving the decorator
// under test without any real sleeps.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	mono time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.mono += d
}

func waitForStatus(t *testing.T, rec *engine.TaskRecord, status engine.TaskStatus) engine.TaskInfo {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		info := rec.Snapshot()
		if info.Status == status {
			return info
		}
		select {
		case <-rec.Wait():
		case <-deadline:
			t.Fatalf("timed out waiting for status %s, last seen %s", status, info.Status)
		}
	}
}

// TestWithSimulatedDurationCompletesAfterNominalDuration drives a
// three-second simulated job through a Manager and confirms the body
// only runs, and the task only completes, once the clock has advanced
// past the nominal duration.
func TestWithSimulatedDurationCompletesAfterNominalDuration(t *testing.T) {
	clock := newFakeClock()
	bodyCalled := make(chan struct{})
	body := Body(func(parameters map[string]interface{}) (interface{}, error) {
		close(bodyCalled)
		return "ok", nil
	})
	executor := WithSimulatedDuration(clock, 3*time.Second, time.Millisecond, body)

	m := engine.NewManager(engine.Config{MaxQueueSize: 1, Concurrency: 1, CleanupAfterSeconds: 3600},
		engine.Registry{"slow": executor}, clock, noopLogger{}, nil)
	m.Start()
	defer m.Stop()

	info, err := m.Submit("slow", nil, 0)
	require.NoError(t, err)
	rec, _ := m.Get(info.TaskID)

	waitForStatus(t, rec, engine.StatusProcessing)

	select {
	case <-bodyCalled:
		t.Fatal("body ran before the nominal duration elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	for i := 0; i < 10; i++ {
		clock.Advance(500 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}

	final := waitForStatus(t, rec, engine.StatusCompleted)
	assert.Equal(t, "ok", final.Result)
	assert.Equal(t, 100, final.Progress)
}

// TestWithSimulatedDurationObservesCancellation confirms a
// cancellation request made mid-simulation short-circuits the wrapper
// before the wrapped body ever runs.
func TestWithSimulatedDurationObservesCancellation(t *testing.T) {
	clock := newFakeClock()
	bodyCalled := make(chan struct{})
	body := Body(func(parameters map[string]interface{}) (interface{}, error) {
		close(bodyCalled)
		return nil, nil
	})
	executor := WithSimulatedDuration(clock, 10*time.Second, time.Millisecond, body)

	m := engine.NewManager(engine.Config{MaxQueueSize: 1, Concurrency: 1, CleanupAfterSeconds: 3600},
		engine.Registry{"slow": executor}, clock, noopLogger{}, nil)
	m.Start()
	defer m.Stop()

	info, err := m.Submit("slow", nil, 0)
	require.NoError(t, err)
	rec, _ := m.Get(info.TaskID)
	waitForStatus(t, rec, engine.StatusProcessing)

	_, err = m.Cancel(info.TaskID)
	require.NoError(t, err)

	clock.Advance(time.Second)
	final := waitForStatus(t, rec, engine.StatusCancelled)
	assert.Equal(t, "Cancelled during processing", final.Error)

	select {
	case <-bodyCalled:
		t.Fatal("body must not run once cancellation is observed")
	default:
	}
}
