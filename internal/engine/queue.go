package engine

import (
	"container/heap"
	"sync"
)

// taskQueue is the bounded admission/dispatch contract the Manager
// depends on. priorityQueue is the default in-memory implementation;
// RedisTaskQueue (redis_queue.go) is an alternative backend selected
// via QUEUE_BACKEND=redis, adapted from the teacher's sorted-set queue
// so the redis/go-redis dependency is exercised even though spec.md's
// default remains in-process.
type taskQueue interface {
	TryEnqueue(priority int, seq uint64, taskID string) bool
	Dequeue() (taskID string, ok bool)
	Len() int
	Close()
}

// queueEntry is one (priority, seq, task_id) triple. Lower priority
// dequeues first; within equal priority, lower seq (submission order)
// dequeues first.
type queueEntry struct {
	priority int
	seq      uint64
	taskID   string
}

// entryHeap is a container/heap.Interface ordered by (priority, seq)
// ascending, so Pop always returns the entry spec.md orders first.
type entryHeap []queueEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(queueEntry))
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// priorityQueue is a bounded, concurrency-safe priority queue of
// (priority, seq, task_id) triples. Admission is strictly non-blocking:
// TryEnqueue fails immediately once Len reaches capacity (spec.md's
// backpressure contract — submit never blocks on a full queue).
// Dequeue blocks a worker until an entry arrives or the queue closes.
type priorityQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	entries  entryHeap
	capacity int
	closed   bool
}

func newPriorityQueue(capacity int) *priorityQueue {
	q := &priorityQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	heap.Init(&q.entries)
	return q
}

// TryEnqueue adds an entry if the queue has room, returning false if
// it is at capacity (the caller maps that to ErrQueueFull).
func (q *priorityQueue) TryEnqueue(priority int, seq uint64, taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.entries) >= q.capacity {
		return false
	}
	heap.Push(&q.entries, queueEntry{priority: priority, seq: seq, taskID: taskID})
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until an entry is available or the queue is closed,
// in which case ok is false.
func (q *priorityQueue) Dequeue() (taskID string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.entries) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.entries) == 0 {
		return "", false
	}
	entry := heap.Pop(&q.entries).(queueEntry)
	return entry.taskID, true
}

// Len returns the current number of pending entries.
func (q *priorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close wakes every blocked Dequeue caller; subsequent Dequeues return
// immediately with ok=false once drained.
func (q *priorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}
