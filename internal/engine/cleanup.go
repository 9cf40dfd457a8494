package engine

import "time"

// runCleanup is the sweeper agent: it wakes every CleanupSleep and
// removes terminal records whose UpdatedAt age has reached
// CleanupAfterSeconds (spec.md §4.1, invariant 5).
func (m *Manager) runCleanup() {
	defer m.wg.Done()

	sleep := m.cfg.CleanupSleep
	if sleep <= 0 {
		sleep = time.Millisecond
	}
	ticker := time.NewTicker(sleep)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	now := m.clock.Now()
	threshold := time.Duration(m.cfg.CleanupAfterSeconds) * time.Second

	m.mu.Lock()
	var removed []string
	for taskID, rec := range m.tasks {
		info := rec.Snapshot()
		if !info.Status.Terminal() {
			continue
		}
		rec.mu.Lock()
		age := now.Sub(rec.UpdatedAt)
		rec.mu.Unlock()
		if age >= threshold {
			removed = append(removed, taskID)
		}
	}
	for _, taskID := range removed {
		delete(m.tasks, taskID)
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.log.Info("cleaned up terminal tasks", "count", len(removed))
	}
}
