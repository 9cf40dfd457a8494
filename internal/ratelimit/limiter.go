// Package ratelimit implements the per-key sliding-window request
// limiter of spec.md §4.3: a bucket of monotonic timestamps per key,
// pruned from the head on every access plus a background sweeper.
package ratelimit

import (
	"sync"
	"time"

	"github.com/flowrunner/taskrunner/internal/platform/logger"
)

// Clock abstracts the monotonic reading the limiter counts against.
// Deliberately narrower than engine.Clock: the limiter only ever needs
// a monotonically increasing duration.
type Clock interface {
	Monotonic() time.Duration
}

// Config holds the limiter's tunables, sourced from the environment
// variables named in spec.md §6.
type Config struct {
	MaxRequests      int
	PeriodSeconds    time.Duration
	CleanupInterval  time.Duration
}

// Limiter is a per-key sliding-window counter. One exclusive mutex
// guards every bucket read and mutation, matching spec.md §5.
type Limiter struct {
	cfg   Config
	clock Clock
	log   logger.Logger

	mu      sync.Mutex
	buckets map[string][]time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Limiter. StartCleanup must be called to run the
// background sweeper; it is optional — Allow/Remaining prune inline
// regardless.
func New(cfg Config, clock Clock, log logger.Logger) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 300 * time.Second
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clock,
		log:     log,
		buckets: make(map[string][]time.Duration),
		stopCh:  make(chan struct{}),
	}
}

// Allow records and admits a request for key if fewer than MaxRequests
// timestamps remain in the trailing PeriodSeconds window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Monotonic()
	bucket := l.pruneLocked(key, now)

	if len(bucket) >= l.cfg.MaxRequests {
		l.buckets[key] = bucket
		return false
	}

	l.buckets[key] = append(bucket, now)
	return true
}

// Remaining returns how many more requests key may make in the
// current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.pruneLocked(key, l.clock.Monotonic())
	l.buckets[key] = bucket

	remaining := l.cfg.MaxRequests - len(bucket)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears one bucket, or every bucket if key is empty.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key == "" {
		l.buckets = make(map[string][]time.Duration)
		return
	}
	delete(l.buckets, key)
}

// pruneLocked drops timestamps older than the sliding window from the
// head of key's bucket. Caller holds l.mu.
func (l *Limiter) pruneLocked(key string, now time.Duration) []time.Duration {
	cutoff := now - l.cfg.PeriodSeconds
	bucket := l.buckets[key]

	i := 0
	for i < len(bucket) && bucket[i] < cutoff {
		i++
	}
	if i == 0 {
		return bucket
	}
	return append([]time.Duration(nil), bucket[i:]...)
}

// StartCleanup launches the background sweeper that periodically
// prunes expired timestamps and drops empty buckets entirely.
func (l *Limiter) StartCleanup() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.sweepOnce()
			}
		}
	}()
}

// StopCleanup stops the background sweeper and waits for it to exit.
func (l *Limiter) StopCleanup() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Limiter) sweepOnce() {
	l.mu.Lock()
	now := l.clock.Monotonic()
	removed := 0
	for key := range l.buckets {
		bucket := l.pruneLocked(key, now)
		if len(bucket) == 0 {
			delete(l.buckets, key)
			removed++
		} else {
			l.buckets[key] = bucket
		}
	}
	l.mu.Unlock()

	if removed > 0 && l.log != nil {
		l.log.Info("rate limiter cleanup removed empty buckets", "count", removed)
	}
}
