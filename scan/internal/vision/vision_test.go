package vision

import (
	"context"
	"errors"
	"image"
	"testing"
)

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

// scriptedIdentifier answers per strategy and records the call order.
type scriptedIdentifier struct {
	answers map[Strategy]*Identification
	errs    map[Strategy]error
	calls   []Strategy
}

func (s *scriptedIdentifier) Identify(ctx context.Context, img image.Image, strat Strategy) (*Identification, error) {
	s.calls = append(s.calls, strat)
	if err := s.errs[strat]; err != nil {
		return nil, err
	}
	if id := s.answers[strat]; id != nil {
		return id, nil
	}
	return &Identification{}, nil
}

func TestRun_StrictWinsFirst(t *testing.T) {
	// WHAT: A strict code read returns immediately without escalating.
	// WHY: A printed code beats any visual guess.
	id := &scriptedIdentifier{answers: map[Strategy]*Identification{
		StrategyStrict: {Code: "5901234123457"},
		StrategyVisual: {Name: "should not be reached"},
	}}
	f := NewFallback(id, nil)

	got, err := f.Run(context.Background(), frame())
	if err != nil {
		t.Fatal(err)
	}
	if got.Code != "5901234123457" || got.Strategy != StrategyStrict {
		t.Fatalf("got %+v", got)
	}
	if len(id.calls) != 1 {
		t.Fatalf("calls = %v, want strict only", id.calls)
	}
}

func TestRun_EscalatesOnEmptyAnswers(t *testing.T) {
	// WHAT: Empty answers escalate strict -> visual -> guess in order.
	// WHY: Each rung loosens the question; the ladder order is the contract.
	id := &scriptedIdentifier{answers: map[Strategy]*Identification{
		StrategyGuess: {Name: "Oat biscuits 250g"},
	}}
	f := NewFallback(id, nil)

	got, err := f.Run(context.Background(), frame())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Oat biscuits 250g" || got.Strategy != StrategyGuess {
		t.Fatalf("got %+v", got)
	}
	want := []Strategy{StrategyStrict, StrategyVisual, StrategyGuess}
	for i, s := range want {
		if id.calls[i] != s {
			t.Fatalf("calls = %v, want %v", id.calls, want)
		}
	}
}

func TestRun_TransportErrorFallsThrough(t *testing.T) {
	// WHAT: A failing rung does not abort the ladder.
	// WHY: A flaky first request must not cost the whole fallback.
	id := &scriptedIdentifier{
		errs:    map[Strategy]error{StrategyStrict: errors.New("timeout")},
		answers: map[Strategy]*Identification{StrategyVisual: {Name: "Milk 1L", Code: "111"}},
	}
	f := NewFallback(id, nil)

	got, err := f.Run(context.Background(), frame())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Milk 1L" || got.Strategy != StrategyVisual {
		t.Fatalf("got %+v", got)
	}
}

func TestRun_AllEmpty(t *testing.T) {
	// WHAT: Three empty answers yield ErrUnidentified.
	// WHY: The caller routes this to an operator error cue.
	id := &scriptedIdentifier{}
	f := NewFallback(id, nil)

	_, err := f.Run(context.Background(), frame())
	if !errors.Is(err, ErrUnidentified) {
		t.Fatalf("expected ErrUnidentified, got %v", err)
	}
	if len(id.calls) != MaxAttempts {
		t.Fatalf("calls = %d, want %d", len(id.calls), MaxAttempts)
	}
}

func TestRun_AllErrorsWrapLast(t *testing.T) {
	// WHAT: When every rung fails in transport, the error matches both
	// ErrUnidentified and the last transport failure.
	// WHY: Logs need the cause; callers need the class.
	cause := errors.New("connection refused")
	id := &scriptedIdentifier{errs: map[Strategy]error{
		StrategyStrict: cause, StrategyVisual: cause, StrategyGuess: cause,
	}}
	f := NewFallback(id, nil)

	_, err := f.Run(context.Background(), frame())
	if !errors.Is(err, ErrUnidentified) || !errors.Is(err, cause) {
		t.Fatalf("got %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	// WHAT: A cancelled context stops the ladder between rungs.
	// WHY: The operator scanning a code successfully cancels the fallback.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFallback(&scriptedIdentifier{}, nil)

	if _, err := f.Run(ctx, frame()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPromptFor_DistinctNonEmpty(t *testing.T) {
	// WHAT: Each ladder rung has its own non-empty prompt.
	// WHY: Identical prompts would make escalation pointless.
	seen := map[string]Strategy{}
	for _, s := range Ladder {
		p := PromptFor(s)
		if p == "" {
			t.Fatalf("empty prompt for %s", s)
		}
		if prev, dup := seen[p]; dup {
			t.Fatalf("prompt for %s duplicates %s", s, prev)
		}
		seen[p] = s
	}
}

func TestIdentification_Empty(t *testing.T) {
	// WHAT: Empty treats nil, blank and whitespace-only answers as empty.
	// WHY: UNKNOWN model answers arrive as blank fields.
	var nilID *Identification
	if !nilID.Empty() {
		t.Fatal("nil should be empty")
	}
	if !(&Identification{Code: "  "}).Empty() {
		t.Fatal("whitespace code should be empty")
	}
	if (&Identification{Name: "Milk"}).Empty() {
		t.Fatal("named answer should not be empty")
	}
}
