package engine

import "sync"

// changeNotifier is a level-triggered, one-shot, re-armable signal used
// to wake long-poll observers of a single task record. A waiter calls
// Wait, which returns a channel that closes on the next Fire; after
// the wait returns the waiter must re-read the record (the channel
// does not carry the new state itself) and, to wait again, call Wait
// again — Fire replaces the channel, so a previously obtained channel
// stays closed forever and is safe to select on more than once.
type changeNotifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newChangeNotifier() *changeNotifier {
	return &changeNotifier{ch: make(chan struct{})}
}

// Wait returns the channel that will close on the next Fire.
func (n *changeNotifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Fire wakes every current waiter and arms a fresh channel for the
// next one. Safe to call from any goroutine, any number of times.
func (n *changeNotifier) Fire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}
