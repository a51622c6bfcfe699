// Package wedge accumulates keystrokes from a keyboard-wedge scanner.
//
// A wedge gun types the code character by character and terminates it with
// Enter. The Buffer collects printable runes, finalizes on Enter, discards
// on Escape, and caps its length so a gun stuck keying noise cannot grow it
// without bound. A refocus loop keeps the host input target armed between
// scans.
package wedge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// MaxLen is the default buffer cap in runes. Real product codes are far
// shorter; anything longer is noise.
const MaxLen = 512

// DefaultRefocusInterval is how often the refocus loop re-arms the input
// target.
const DefaultRefocusInterval = 100 * time.Millisecond

// Emit receives a finalized code. Called with the trimmed buffer contents
// on Enter; never called with an empty string.
type Emit func(code string)

// Config tunes a Buffer.
type Config struct {
	// MaxLen caps the buffer length in runes. Zero means MaxLen.
	MaxLen int
	// RefocusInterval is the period of RunRefocus. Zero means
	// DefaultRefocusInterval.
	RefocusInterval time.Duration
}

func (c *Config) defaults() {
	if c.MaxLen <= 0 {
		c.MaxLen = MaxLen
	}
	if c.RefocusInterval <= 0 {
		c.RefocusInterval = DefaultRefocusInterval
	}
}

// Buffer is the wedge keystroke accumulator. Safe for concurrent use.
type Buffer struct {
	cfg  Config
	emit Emit
	log  *slog.Logger

	mu  sync.Mutex
	buf []rune
}

// New creates a Buffer. emit must be non-nil.
func New(cfg Config, emit Emit, log *slog.Logger) *Buffer {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{cfg: cfg, emit: emit, log: log}
}

// Rune appends one printable keystroke. Control characters and runes past
// the cap are dropped.
func (b *Buffer) Rune(r rune) {
	if r < 0x20 || r == 0x7f {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) >= b.cfg.MaxLen {
		b.log.Warn("wedge buffer full, dropping keystroke", "len", len(b.buf))
		return
	}
	b.buf = append(b.buf, r)
}

// Enter finalizes the buffer: the contents are trimmed, the buffer clears,
// and a non-empty code is emitted. Reports the code and whether one was
// emitted. A bare Enter on an empty buffer emits nothing.
func (b *Buffer) Enter() (string, bool) {
	b.mu.Lock()
	code := strings.TrimSpace(string(b.buf))
	b.buf = b.buf[:0]
	b.mu.Unlock()

	if code == "" {
		return "", false
	}
	b.emit(code)
	return code, true
}

// Escape discards the buffer without emitting.
func (b *Buffer) Escape() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}

// Len returns the number of buffered runes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// RunRefocus calls focus every RefocusInterval until ctx is done. Wedge
// input only reaches the buffer while the host's capture target holds
// focus; the loop re-arms it after the UI steals it.
func (b *Buffer) RunRefocus(ctx context.Context, focus func()) {
	ticker := time.NewTicker(b.cfg.RefocusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			focus()
		}
	}
}
