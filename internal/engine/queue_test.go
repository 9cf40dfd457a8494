package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdersByPriorityThenSeq(t *testing.T) {
	q := newPriorityQueue(10)

	require.True(t, q.TryEnqueue(5, 1, "low-first"))
	require.True(t, q.TryEnqueue(1, 2, "high-first"))
	require.True(t, q.TryEnqueue(1, 3, "high-second"))

	id, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high-first", id)

	id, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high-second", id)

	id, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "low-first", id)
}

func TestPriorityQueueRejectsAtCapacity(t *testing.T) {
	q := newPriorityQueue(2)

	assert.True(t, q.TryEnqueue(0, 1, "a"))
	assert.True(t, q.TryEnqueue(0, 2, "b"))
	assert.False(t, q.TryEnqueue(0, 3, "c"))
	assert.Equal(t, 2, q.Len())
}

func TestPriorityQueueDequeueAfterDrain(t *testing.T) {
	q := newPriorityQueue(1)
	require.True(t, q.TryEnqueue(0, 1, "only"))

	_, ok := q.Dequeue()
	require.True(t, ok)

	// Room freed; a new entry should be accepted and be observable.
	assert.True(t, q.TryEnqueue(0, 2, "next"))
	assert.Equal(t, 1, q.Len())
}

func TestPriorityQueueCloseWakesBlockedDequeue(t *testing.T) {
	q := newPriorityQueue(1)
	done := make(chan struct{})

	go func() {
		_, ok := q.Dequeue()
		assert.False(t, ok)
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up after Close")
	}
}
