package engine

import (
	"sync"
	"time"
)

// TaskStatus is one of the five lifecycle states a task can occupy.
type TaskStatus string

const (
	StatusQueued     TaskStatus = "queued"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether s is one of the three states no further
// transition is permitted from.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProgressInfo is the human-readable projection of a task's current
// progress, as shown to HTTP observers.
type ProgressInfo struct {
	Message    string     `json:"message"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EtaSeconds *int       `json:"eta_seconds,omitempty"`
}

// TaskInfo is the publicly observable projection of a task: every
// field an HTTP caller may see. It is copied out of the record under
// the record's own lock, never shared mutably with callers.
type TaskInfo struct {
	TaskID       string                 `json:"task_id"`
	Status       TaskStatus             `json:"status"`
	TaskType     string                 `json:"task_type"`
	Parameters   map[string]interface{} `json:"parameters"`
	Result       interface{}            `json:"result,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Progress     int                    `json:"progress"`
	ProgressInfo ProgressInfo           `json:"progress_info"`
}

// Clone returns a deep-enough copy of info safe to hand to a caller
// outside the manager's lock (ProgressInfo is a value, Parameters and
// Result are opaque maps/values owned by the caller once submitted and
// not mutated afterwards by the manager).
func (i TaskInfo) Clone() TaskInfo {
	return i
}

// TaskRecord is the manager's internal bookkeeping for one task. It is
// never exposed directly to HTTP callers; only its Info projection is.
//
// The task table and seq counter are guarded by the manager's single
// exclusive mutex (spec.md §4.1). A record's own fields are mutated by
// exactly one worker at a time while processing, but HTTP readers call
// Get concurrently from other goroutines, so each record additionally
// carries its own small mutex guarding Info/CancelRequested/UpdatedAt.
type TaskRecord struct {
	mu sync.Mutex

	Info            TaskInfo
	CancelRequested bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// StartedMonotonic is set once processing begins; it anchors the
	// simulated-duration wrapper's elapsed-time computation.
	StartedMonotonic time.Duration
	HasStarted       bool

	EstTotalSeconds *int

	notifier *changeNotifier
}

func newTaskRecord(taskID, taskType string, parameters map[string]interface{}, now time.Time) *TaskRecord {
	return &TaskRecord{
		Info: TaskInfo{
			TaskID:     taskID,
			Status:     StatusQueued,
			TaskType:   taskType,
			Parameters: parameters,
			Progress:   0,
			ProgressInfo: ProgressInfo{
				Message: "Queued",
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
		notifier:  newChangeNotifier(),
	}
}

// Snapshot returns a copy of the record's public projection. Safe to
// call from any goroutine.
func (r *TaskRecord) Snapshot() TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Info.Clone()
}

// TaskID returns the record's immutable identifier.
func (r *TaskRecord) TaskID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Info.TaskID
}

// TaskType returns the record's immutable task type name.
func (r *TaskRecord) TaskType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Info.TaskType
}

// Parameters returns the record's submitted parameters map. The map
// itself is never mutated after submission, so sharing the reference
// is safe.
func (r *TaskRecord) Parameters() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Info.Parameters
}

// Status returns the record's current status.
func (r *TaskRecord) Status() TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Info.Status
}

// IsCancelRequested reports whether cancellation has been requested.
func (r *TaskRecord) IsCancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CancelRequested
}

// Wait returns the channel that closes on the record's next observable
// change (status, progress, or progress_info update).
func (r *TaskRecord) Wait() <-chan struct{} {
	return r.notifier.Wait()
}

// markProcessing transitions a queued record to processing. Called by
// exactly one worker per record.
func (r *TaskRecord) markProcessing(now time.Time, elapsed time.Duration) {
	r.mu.Lock()
	r.Info.Status = StatusProcessing
	r.Info.Progress = 0
	r.Info.ProgressInfo = ProgressInfo{Message: "Processing...", StartedAt: &now}
	r.UpdatedAt = now
	r.HasStarted = true
	r.StartedMonotonic = elapsed
	r.mu.Unlock()
	r.notifier.Fire()
}

// UpdateProgress is called by the simulated-duration wrapper (and may
// be called by a job body) to publish an in-flight progress update.
func (r *TaskRecord) UpdateProgress(now time.Time, progress int, info ProgressInfo) {
	r.mu.Lock()
	r.Info.Progress = progress
	r.Info.ProgressInfo = info
	r.UpdatedAt = now
	r.mu.Unlock()
	r.notifier.Fire()
}

// MarkCancelledDuringProcessing records the terminal cancellation state
// observed by the simulated-duration wrapper at a tick checkpoint.
func (r *TaskRecord) MarkCancelledDuringProcessing(now time.Time, progress int, startedAt *time.Time) {
	r.mu.Lock()
	r.Info.Status = StatusCancelled
	r.Info.Error = "Cancelled during processing"
	r.Info.Progress = progress
	r.Info.ProgressInfo = ProgressInfo{Message: "Cancelled on request", StartedAt: startedAt}
	r.UpdatedAt = now
	r.mu.Unlock()
	r.notifier.Fire()
}

// finish applies a terminal outcome (completed/failed/cancelled)
// computed by the worker after invoking the executor.
func (r *TaskRecord) finish(now time.Time, status TaskStatus, result interface{}, errMsg string) {
	r.mu.Lock()
	r.Info.Status = status
	switch status {
	case StatusCompleted:
		r.Info.Result = result
		r.Info.Progress = 100
		zero := 0
		r.Info.ProgressInfo = ProgressInfo{Message: "Done", StartedAt: r.Info.ProgressInfo.StartedAt, EtaSeconds: &zero}
	case StatusFailed, StatusCancelled:
		r.Info.Error = errMsg
	}
	r.UpdatedAt = now
	r.mu.Unlock()
	r.notifier.Fire()
}

// requestCancel sets the cooperative cancellation flag. If the record
// is still queued, it is transitioned to cancelled immediately and
// true is returned for "became terminal now".
func (r *TaskRecord) requestCancel(now time.Time) (info TaskInfo, becameTerminal bool, alreadyTerminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Info.Status.Terminal() {
		alreadyTerminal = true
		return r.Info.Clone(), false, true
	}

	r.CancelRequested = true
	r.UpdatedAt = now

	if r.Info.Status == StatusQueued {
		r.Info.Status = StatusCancelled
		r.Info.Error = "Cancelled before processing"
		becameTerminal = true
	}

	info = r.Info.Clone()
	return info, becameTerminal, false
}
