package wedge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBuffer(cfg Config) (*Buffer, *[]string) {
	var emitted []string
	b := New(cfg, func(code string) { emitted = append(emitted, code) }, nil)
	return b, &emitted
}

func typeString(b *Buffer, s string) {
	for _, r := range s {
		b.Rune(r)
	}
}

func TestEnter_EmitsTrimmedCode(t *testing.T) {
	// WHAT: Enter emits the buffered keystrokes with surrounding whitespace
	// trimmed, then clears the buffer.
	// WHY: Guns sometimes key a trailing space before the terminator.
	b, emitted := newTestBuffer(Config{})
	typeString(b, " 5901234123457 ")

	code, ok := b.Enter()
	if !ok || code != "5901234123457" {
		t.Fatalf("Enter = %q, %v; want trimmed code", code, ok)
	}
	if len(*emitted) != 1 || (*emitted)[0] != "5901234123457" {
		t.Fatalf("emitted = %v", *emitted)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not cleared, len = %d", b.Len())
	}
}

func TestEnter_EmptyBufferEmitsNothing(t *testing.T) {
	// WHAT: A bare Enter, or Enter after only whitespace, emits no code.
	// WHY: Operators lean on the keyboard; phantom scans are unacceptable.
	b, emitted := newTestBuffer(Config{})

	if _, ok := b.Enter(); ok {
		t.Fatal("bare Enter emitted")
	}
	typeString(b, "   ")
	if _, ok := b.Enter(); ok {
		t.Fatal("whitespace-only Enter emitted")
	}
	if len(*emitted) != 0 {
		t.Fatalf("emitted = %v", *emitted)
	}
}

func TestEscape_Discards(t *testing.T) {
	// WHAT: Escape clears the buffer; a following Enter emits nothing.
	// WHY: Escape is the operator's abort for a half-keyed code.
	b, emitted := newTestBuffer(Config{})
	typeString(b, "12345")
	b.Escape()

	if b.Len() != 0 {
		t.Fatalf("len = %d after Escape", b.Len())
	}
	if _, ok := b.Enter(); ok || len(*emitted) != 0 {
		t.Fatal("Enter after Escape emitted")
	}
}

func TestRune_DropsControlCharacters(t *testing.T) {
	// WHAT: Control characters never enter the buffer.
	// WHY: Some guns interleave carriage returns and tabs with the code.
	b, _ := newTestBuffer(Config{})
	b.Rune('\r')
	b.Rune('\t')
	b.Rune(0x7f)
	b.Rune('A')

	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
}

func TestRune_CapsLength(t *testing.T) {
	// WHAT: Keystrokes past the cap are dropped; the kept prefix still emits.
	// WHY: A gun stuck repeating must not grow the buffer without bound.
	b, _ := newTestBuffer(Config{MaxLen: 4})
	typeString(b, "123456789")

	if b.Len() != 4 {
		t.Fatalf("len = %d, want 4", b.Len())
	}
	code, ok := b.Enter()
	if !ok || code != "1234" {
		t.Fatalf("Enter = %q, %v; want capped prefix", code, ok)
	}
}

func TestSequentialScans(t *testing.T) {
	// WHAT: Two back-to-back scans emit two codes.
	// WHY: The clear-on-Enter contract is what makes rapid scanning work.
	b, emitted := newTestBuffer(Config{})
	typeString(b, "111")
	b.Enter()
	typeString(b, "222")
	b.Enter()

	if len(*emitted) != 2 || (*emitted)[0] != "111" || (*emitted)[1] != "222" {
		t.Fatalf("emitted = %v", *emitted)
	}
}

func TestRunRefocus(t *testing.T) {
	// WHAT: The refocus loop invokes the hook repeatedly and stops on
	// context cancellation.
	// WHY: Wedge input dies silently when the capture target loses focus.
	b, _ := newTestBuffer(Config{RefocusInterval: 5 * time.Millisecond})

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.RunRefocus(ctx, func() { calls.Add(1) })
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refocus loop did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("refocus called %d times, want at least 3", calls.Load())
	}
}
