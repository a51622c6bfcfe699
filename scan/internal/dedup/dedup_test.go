package dedup

import (
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(window time.Duration) (*Gate, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	g := New(window)
	g.now = clk.now
	return g, clk
}

func TestAdmit_SuppressesInsideWindow(t *testing.T) {
	// WHAT: Repeats of a code inside the window are rejected; the first
	// read after the window is admitted again.
	// WHY: A scanner held on a label fires dozens of identical reads; only
	// one may reach the cart per window.
	g, clk := newTestGate(time.Second)

	if !g.Admit("111") {
		t.Fatal("first read must be admitted")
	}
	clk.advance(300 * time.Millisecond)
	if g.Admit("111") {
		t.Fatal("repeat at 300ms must be suppressed")
	}
	clk.advance(700 * time.Millisecond)
	if !g.Admit("111") {
		t.Fatal("read at 1000ms must be admitted")
	}
}

func TestAdmit_WindowNotExtendedByRejects(t *testing.T) {
	// WHAT: Suppressed reads do not restart the window.
	// WHY: Continuous scanning must still register one unit per window,
	// not starve forever.
	g, clk := newTestGate(time.Second)
	g.Admit("111")
	for i := 0; i < 9; i++ {
		clk.advance(100 * time.Millisecond)
		g.Admit("111")
	}
	clk.advance(100 * time.Millisecond) // 1s since the admitted read
	if !g.Admit("111") {
		t.Fatal("window extended by rejected reads")
	}
}

func TestAdmit_IndependentPerCode(t *testing.T) {
	// WHAT: Each code has its own window.
	// WHY: Scanning product B right after product A is two sales, not a bounce.
	g, _ := newTestGate(time.Second)
	if !g.Admit("111") || !g.Admit("222") {
		t.Fatal("distinct codes must both be admitted")
	}
}

func TestReset(t *testing.T) {
	// WHAT: Reset forgets history so the next read is admitted immediately.
	// WHY: Clearing a cart starts a new customer; old windows are noise.
	g, _ := newTestGate(time.Second)
	g.Admit("111")
	g.Reset()
	if !g.Admit("111") {
		t.Fatal("read after Reset must be admitted")
	}
}

func TestNew_DefaultWindow(t *testing.T) {
	// WHAT: A non-positive window falls back to the default.
	// WHY: A zero-valued config must still dedupe.
	g := New(0)
	if g.window != DefaultWindow {
		t.Fatalf("window = %v, want %v", g.window, DefaultWindow)
	}
}

func TestPrune_BoundsMemory(t *testing.T) {
	// WHAT: Expired entries are dropped once the map grows past its bound.
	// WHY: A long session scans thousands of distinct codes.
	g, clk := newTestGate(time.Second)
	for i := 0; i < 300; i++ {
		g.Admit(string(rune('a'+i%26)) + time.Duration(i).String())
		clk.advance(10 * time.Millisecond)
	}
	clk.advance(2 * time.Second)
	g.Admit("final")
	if len(g.seen) >= 300 {
		t.Fatalf("seen map not pruned: %d entries", len(g.seen))
	}
}
