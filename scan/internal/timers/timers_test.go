package timers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedule_Fires(t *testing.T) {
	// WHAT: A scheduled function runs after its delay and the name clears.
	// WHY: This is the base contract every deadline in the pipeline uses.
	s := NewSet()
	defer s.Close()

	done := make(chan struct{})
	s.Schedule("idle", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	// The fired timer is removed; allow the bookkeeping goroutine to finish.
	deadline := time.Now().Add(time.Second)
	for s.Pending("idle") {
		if time.Now().After(deadline) {
			t.Fatal("fired timer still pending")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedule_ReplacesSameName(t *testing.T) {
	// WHAT: Rescheduling a name drops the earlier timer; only the latest
	// function runs.
	// WHY: Every scan pushes the idle deadline back; the old deadline must
	// never fire.
	s := NewSet()
	defer s.Close()

	var fired atomic.Int32
	s.Schedule("idle", 20*time.Millisecond, func() { fired.Add(100) })
	s.Schedule("idle", 30*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want only the replacement (1)", got)
	}
}

func TestCancel(t *testing.T) {
	// WHAT: Cancel stops a pending timer and reports whether one existed.
	// WHY: A flush cancels the idle announcement; cancelling twice is a no-op.
	s := NewSet()
	defer s.Close()

	var fired atomic.Bool
	s.Schedule("flush", 20*time.Millisecond, func() { fired.Store(true) })

	if !s.Cancel("flush") {
		t.Fatal("expected pending timer to cancel")
	}
	if s.Cancel("flush") {
		t.Fatal("second cancel should report false")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer fired")
	}
}

func TestPending(t *testing.T) {
	// WHAT: Pending reflects whether a name is armed.
	// WHY: The service inspects state when deciding whether to extend a
	// debounce.
	s := NewSet()
	defer s.Close()

	if s.Pending("x") {
		t.Fatal("empty set reports pending")
	}
	s.Schedule("x", time.Minute, func() {})
	if !s.Pending("x") {
		t.Fatal("scheduled name not pending")
	}
}

func TestClose_CancelsAllAndRejectsNew(t *testing.T) {
	// WHAT: Close stops every timer and later Schedule calls do nothing.
	// WHY: Service shutdown must not leave goroutines firing into freed state.
	s := NewSet()
	var fired atomic.Bool
	s.Schedule("a", 20*time.Millisecond, func() { fired.Store(true) })
	s.Schedule("b", 20*time.Millisecond, func() { fired.Store(true) })
	s.Close()

	s.Schedule("c", time.Millisecond, func() { fired.Store(true) })
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatal("timer fired after Close")
	}
}
