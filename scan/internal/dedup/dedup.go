// Package dedup suppresses repeated reads of the same code.
//
// A handheld scanner or a camera held over a barcode emits the same code
// many times per second. The Gate admits the first read and swallows
// repeats inside a per-code window, so one physical scan becomes one cart
// mutation.
package dedup

import (
	"sync"
	"time"
)

// DefaultWindow is the per-code suppression window.
const DefaultWindow = 1000 * time.Millisecond

// Gate is a per-code time window filter. Safe for concurrent use.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// New creates a Gate. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		window: window,
		seen:   map[string]time.Time{},
		now:    time.Now,
	}
}

// Admit reports whether code should be processed. The first read of a code
// is admitted and starts its window; reads inside the window are rejected
// without extending it, so a code scanned continuously still re-admits once
// per window.
func (g *Gate) Admit(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.seen[code]; ok && now.Sub(last) < g.window {
		return false
	}
	g.seen[code] = now
	g.pruneLocked(now)
	return true
}

// Reset forgets all recorded codes. Used when a cart is cleared so the next
// scan of a just-sold product is not mistaken for a bounce.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.seen)
}

// pruneLocked drops expired entries once the map accumulates them.
// Callers hold g.mu.
func (g *Gate) pruneLocked(now time.Time) {
	if len(g.seen) < 256 {
		return
	}
	for code, last := range g.seen {
		if now.Sub(last) >= g.window {
			delete(g.seen, code)
		}
	}
}
