package engine

import (
	"errors"
	"runtime/debug"
)

// runWorker is the loop for one worker agent: dequeue, look up,
// transition to processing, invoke the registered executor, classify
// the outcome, and acknowledge the queue slot. Tolerates a dequeued
// task_id whose record has already been removed (invariant 6).
func (m *Manager) runWorker(index int) {
	defer m.wg.Done()

	for {
		taskID, ok := m.queue.Dequeue()
		if !ok {
			return
		}
		m.metrics.QueueDepth(m.queue.Len())

		rec, found := m.Get(taskID)
		if !found {
			continue
		}
		if rec.Status() == StatusCancelled {
			continue
		}

		m.process(rec)

		select {
		case <-m.stopCh:
			return
		default:
		}
	}
}

// process runs one task end to end on the calling worker goroutine.
func (m *Manager) process(rec *TaskRecord) {
	rec.markProcessing(m.clock.Now(), m.clock.Monotonic())

	result, err := m.invoke(rec)

	now := m.clock.Now()
	switch {
	case err == nil:
		rec.finish(now, StatusCompleted, result, "")
		m.metrics.TaskCompleted()
	case errors.Is(err, ErrCancelled):
		// The simulated-duration wrapper already wrote the cancelled
		// projection (message, progress, eta) at the checkpoint that
		// observed the flag; finish only needs to confirm the terminal
		// status and error string for callers that raced past it.
		rec.finish(now, StatusCancelled, nil, "Cancelled during processing")
		m.metrics.TaskCancelled()
	default:
		var tf *TaskFailedError
		if errors.As(err, &tf) {
			rec.finish(now, StatusFailed, nil, tf.Reason)
		} else {
			rec.finish(now, StatusFailed, nil, unexpectedFailure(err))
			m.log.Error("unexpected error processing task",
				"task_id", rec.TaskID(),
				"task_type", rec.TaskType(),
				"error", err,
			)
		}
		m.metrics.TaskFailed()
	}
}

// invoke calls the registered executor for rec's task type, recovering
// from a panic and reclassifying it as an Unexpected failure with a
// stack trace, matching spec.md §4.1 step 6.
func (m *Manager) invoke(rec *TaskRecord) (result interface{}, err error) {
	ex, ok := m.registry[rec.TaskType()]
	if !ok {
		return nil, TaskFailed("unknown task type: " + rec.TaskType())
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic recovered while processing task",
				"task_id", rec.TaskID(),
				"task_type", rec.TaskType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = errors.New("panic: " + panicMessage(r))
		}
	}()

	return ex(rec, rec.Parameters())
}

func panicMessage(r interface{}) string {
	if e, ok := r.(error); ok {
		return e.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-error panic value"
}
