package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowrunner/taskrunner/internal/platform/logger"
)

// Executor is the contract between the manager and a registered job
// body: it may mutate rec to publish progress, must check
// rec.IsCancelRequested() at cooperative checkpoints, and returns
// either a result value, a *TaskFailedError, or ErrCancelled.
type Executor func(rec *TaskRecord, parameters map[string]interface{}) (interface{}, error)

// Registry maps a registered task_type name to its executor.
type Registry map[string]Executor

// Config holds Task Manager tunables, sourced from spec.md §4.1 and
// wired to the environment variables named in spec.md §6.
type Config struct {
	MaxQueueSize        int
	Concurrency         int
	CleanupAfterSeconds int
	CleanupSleep        time.Duration
}

// Manager owns the task table, the priority queue, the worker pool,
// and the cleanup sweeper. It is the sole owner of every TaskRecord;
// callers only ever see TaskInfo snapshots.
type Manager struct {
	cfg      Config
	registry Registry
	clock    Clock
	log      logger.Logger

	mu    sync.Mutex
	tasks map[string]*TaskRecord
	seq   uint64

	queue taskQueue

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	metrics ManagerMetrics
}

// ManagerMetrics is an optional sink for observability counters; a
// nil-safe no-op implementation is used if none is supplied.
type ManagerMetrics interface {
	TaskSubmitted()
	TaskCompleted()
	TaskFailed()
	TaskCancelled()
	QueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) TaskSubmitted()   {}
func (noopMetrics) TaskCompleted()   {}
func (noopMetrics) TaskFailed()      {}
func (noopMetrics) TaskCancelled()   {}
func (noopMetrics) QueueDepth(int)   {}

// NewManager constructs a Manager with the default in-memory priority
// queue. Start must be called before tasks are dispatched; Stop shuts
// the worker pool and sweeper down.
func NewManager(cfg Config, registry Registry, clock Clock, log logger.Logger, metrics ManagerMetrics) *Manager {
	return newManager(cfg, registry, clock, log, metrics, newPriorityQueue(cfg.MaxQueueSize))
}

// NewManagerWithQueue constructs a Manager over a caller-supplied
// queue backend (e.g. RedisTaskQueue), for QUEUE_BACKEND=redis.
func NewManagerWithQueue(cfg Config, registry Registry, clock Clock, log logger.Logger, metrics ManagerMetrics, queue taskQueue) *Manager {
	return newManager(cfg, registry, clock, log, metrics, queue)
}

func newManager(cfg Config, registry Registry, clock Clock, log logger.Logger, metrics ManagerMetrics, queue taskQueue) *Manager {
	if clock == nil {
		clock = NewSystemClock()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		log:      log,
		tasks:    make(map[string]*TaskRecord),
		queue:    queue,
		stopCh:   make(chan struct{}),
		metrics:  metrics,
	}
}

// Start spawns the configured number of worker agents plus the
// cleanup sweeper.
func (m *Manager) Start() {
	for i := 0; i < m.cfg.Concurrency; i++ {
		m.wg.Add(1)
		go m.runWorker(i)
	}
	m.wg.Add(1)
	go m.runCleanup()
}

// Stop cancels the worker pool and sweeper and waits for them to
// terminate. Every non-terminal task is flagged cancelled first, so an
// in-flight executor observes it at its next checkpoint (bounded by the
// simulated-duration wrapper's tick) instead of running to completion
// of its full nominal duration, matching the original's behavior of
// cancelling every worker's task on shutdown.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancelAllInFlight()
		close(m.stopCh)
		m.queue.Close()
	})
	m.wg.Wait()
}

// cancelAllInFlight requests cancellation on every task still tracked
// that has not already reached a terminal state.
func (m *Manager) cancelAllInFlight() {
	now := m.clock.Now()

	m.mu.Lock()
	recs := make([]*TaskRecord, 0, len(m.tasks))
	for _, rec := range m.tasks {
		recs = append(recs, rec)
	}
	m.mu.Unlock()

	for _, rec := range recs {
		if _, becameTerminal, alreadyTerminal := rec.requestCancel(now); becameTerminal || !alreadyTerminal {
			rec.notifier.Fire()
		}
	}
}

// Submit admits a new task. It never blocks: if the queue is at
// capacity the just-inserted record is removed and ErrQueueFull is
// returned.
func (m *Manager) Submit(taskType string, parameters map[string]interface{}, priority int) (TaskInfo, error) {
	now := m.clock.Now()
	taskID := uuid.New().String()
	rec := newTaskRecord(taskID, taskType, parameters, now)

	m.mu.Lock()
	m.tasks[taskID] = rec
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if !m.queue.TryEnqueue(priority, seq, taskID) {
		m.mu.Lock()
		delete(m.tasks, taskID)
		m.mu.Unlock()
		return TaskInfo{}, ErrQueueFull
	}

	m.metrics.TaskSubmitted()
	m.metrics.QueueDepth(m.queue.Len())
	return rec.Snapshot(), nil
}

// Get returns the record for taskID, or (nil, false) if it does not
// exist (either never submitted, or already cleaned up).
func (m *Manager) Get(taskID string) (*TaskRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	return rec, ok
}

// Cancel requests cancellation of taskID. Returns ErrTaskNotFound if
// unknown, *NotCancellableError if already terminal. A queued task is
// cancelled synchronously; a processing task is flagged and the
// change notifier fires so long-poll waiters observe the request, but
// the final transition to cancelled happens at the executor's next
// checkpoint.
func (m *Manager) Cancel(taskID string) (TaskInfo, error) {
	rec, ok := m.Get(taskID)
	if !ok {
		return TaskInfo{}, ErrTaskNotFound
	}

	now := m.clock.Now()
	info, becameTerminal, alreadyTerminal := rec.requestCancel(now)
	if alreadyTerminal {
		return TaskInfo{}, &NotCancellableError{TaskID: taskID, Status: info.Status}
	}

	rec.notifier.Fire()
	if becameTerminal {
		m.metrics.TaskCancelled()
	}
	return info, nil
}

// List returns a snapshot of up to limit tasks, optionally filtered by
// status. The table is snapshotted once under the lock; filtering and
// copying happen outside it, per spec.md §4.1's streaming contract.
// The returned slice reflects a point-in-time approximation: a
// record's live status may have moved on by the time the caller reads
// it (spec.md §9 Open Questions).
func (m *Manager) List(statusFilter *TaskStatus, limit int) []TaskInfo {
	m.mu.Lock()
	snapshot := make([]*TaskRecord, 0, len(m.tasks))
	for _, rec := range m.tasks {
		snapshot = append(snapshot, rec)
	}
	m.mu.Unlock()

	out := make([]TaskInfo, 0, limit)
	for _, rec := range snapshot {
		info := rec.Snapshot()
		if statusFilter != nil && info.Status != *statusFilter {
			continue
		}
		out = append(out, info)
		if len(out) >= limit {
			break
		}
	}
	return out
}


// QueueDepth reports the current number of queued (not yet dequeued)
// tasks, for health.QueueDepthChecker and the queue_depth gauge.
func (m *Manager) QueueDepth() int {
	return m.queue.Len()
}

// unexpectedFailure formats the "Unexpected error: <detail>" message
// spec.md §4.1 step 6 requires for any non-classified executor failure.
func unexpectedFailure(err error) string {
	return fmt.Sprintf("Unexpected error: %s", err.Error())
}
