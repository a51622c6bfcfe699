// Package timers consolidates the pipeline's named one-shot timers.
//
// The service juggles several independent deadlines (idle announcement,
// auto-persist debounce, vision guard, wedge refocus). A Set gives each a
// name and guarantees that scheduling a name again replaces the previous
// timer, so a deadline can be pushed back without leaking the old one.
package timers

import (
	"sync"
	"time"
)

// Set is a collection of named one-shot timers. Safe for concurrent use.
type Set struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{timers: map[string]*time.Timer{}}
}

// Schedule arms name to run fn after d, replacing any pending timer with
// the same name. fn runs on its own goroutine. Scheduling on a closed Set
// is a no-op.
func (s *Set) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending timer. Reports whether one was pending. A timer
// whose function already started cannot be cancelled.
func (s *Set) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return false
	}
	delete(s.timers, name)
	return t.Stop()
}

// Pending reports whether name has an armed timer.
func (s *Set) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// Close cancels every pending timer and rejects further scheduling.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}
