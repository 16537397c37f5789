package opqueue

import "sync"

// Completion is a driver acknowledgement routed to the queue.
type Completion struct {
	OpID uint64
	Err  error
}

// slot is the single completion slot of the worker.
// It is armed with the awaited op id before dispatch and released by at most one completion.
type slot struct {
	mu    sync.Mutex
	armed bool
	opID  uint64
	ch    chan Completion
}

func newSlot() *slot {
	return &slot{ch: make(chan Completion, 1)}
}

func (s *slot) arm(opID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain()
	s.armed = true
	s.opID = opID
}

func (s *slot) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.drain()
}

// deliver releases the armed wait. With match set only the awaited op id releases it.
func (s *slot) deliver(c Completion, match bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return false
	}
	if match && c.OpID != s.opID {
		return false
	}
	s.armed = false
	s.ch <- c
	return true
}

func (s *slot) awaited() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opID, s.armed
}

// drain must be called with mu held.
func (s *slot) drain() {
	select {
	case <-s.ch:
	default:
	}
}
