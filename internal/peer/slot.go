package peer

import (
	"sync"
	"time"
)

// DefaultGraceWindow is how long a detached session survives before its
// resources are torn down. A consumer that comes back within the window
// reattaches to the live connection instead of renegotiating.
const DefaultGraceWindow = 5 * time.Second

// Slot holds at most one live orchestrator for the process. UI layers that
// unmount and remount share the session through it rather than owning the
// orchestrator directly.
type Slot struct {
	grace time.Duration

	mu       sync.Mutex
	current  *Orchestrator
	teardown *time.Timer
}

func NewSlot(grace time.Duration) *Slot {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Slot{grace: grace}
}

// Put installs a new orchestrator, closing whatever occupied the slot.
func (s *Slot) Put(o *Orchestrator) {
	s.mu.Lock()
	prev := s.current
	s.current = o
	s.cancelTeardownLocked()
	s.mu.Unlock()

	if prev != nil && prev != o {
		prev.Close()
	}
}

// Attach claims the live orchestrator, cancelling any pending teardown.
// Returns nil when the slot is empty.
func (s *Slot) Attach() *Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTeardownLocked()
	return s.current
}

// Detach schedules teardown after the grace window. A re-Attach before the
// window elapses keeps the session alive.
func (s *Slot) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.cancelTeardownLocked()
	var t *time.Timer
	t = time.AfterFunc(s.grace, func() { s.expire(t) })
	s.teardown = t
}

// Release closes the session immediately, skipping the grace window.
func (s *Slot) Release() {
	s.mu.Lock()
	o := s.current
	s.current = nil
	s.cancelTeardownLocked()
	s.mu.Unlock()

	if o != nil {
		o.Close()
	}
}

func (s *Slot) expire(t *time.Timer) {
	s.mu.Lock()
	// An Attach or a newer Detach superseded this timer; nothing to do.
	if s.teardown != t {
		s.mu.Unlock()
		return
	}
	o := s.current
	s.current = nil
	s.teardown = nil
	s.mu.Unlock()

	if o != nil {
		o.Close()
	}
}

func (s *Slot) cancelTeardownLocked() {
	if s.teardown != nil {
		s.teardown.Stop()
		s.teardown = nil
	}
}
