// Package feedback turns pipeline outcomes into operator cues.
//
// The scan service emits feedback events (a code detected, a line added, a
// failure, an idle summary) and a Router fans each one out to registered
// sinks. Sinks drive whatever the till has: a beeper, a speech engine, a
// status lamp. The package ships the tone table; rendering is the sink's
// problem.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tillworks/scanpipe/cart"
)

// Kind classifies a feedback event.
type Kind string

const (
	// KindDetect fires when a code is captured, before resolution.
	KindDetect Kind = "detect"
	// KindSuccess fires when a resolved product lands in the cart.
	KindSuccess Kind = "success"
	// KindError fires on unresolved codes and pipeline failures.
	KindError Kind = "error"
	// KindSummary fires when the idle monitor reads the cart back.
	KindSummary Kind = "summary"
	// KindPrompt fires when the idle monitor nudges an empty lane.
	KindPrompt Kind = "prompt"
	// KindReject fires when a capture is suppressed, such as a repeat
	// inside the dedup window. Rejections are silent; the kind exists so
	// a UX sink can flash without beeping.
	KindReject Kind = "reject"
)

// Event is one operator cue.
type Event struct {
	Kind Kind
	// Text is a spoken or displayed message; empty for tone-only cues.
	Text string
	// Code is the product code involved, when there is one.
	Code string
	// Cart is the lane state a summary reads back; nil for other kinds.
	Cart *cart.Snapshot
	At   time.Time
}

// Tone describes an audio cue for sinks with a beeper.
type Tone struct {
	FrequencyHz int
	Duration    time.Duration
	// Repeat is the number of beeps; the gap between beeps equals Duration.
	Repeat int
}

// ToneFor returns the standard tone for a kind. Summary and prompt events
// are speech-first and reuse the success and detect tones.
func ToneFor(k Kind) Tone {
	switch k {
	case KindSuccess, KindSummary:
		return Tone{FrequencyHz: 1000, Duration: 100 * time.Millisecond, Repeat: 1}
	case KindError:
		return Tone{FrequencyHz: 300, Duration: 200 * time.Millisecond, Repeat: 1}
	case KindDetect, KindPrompt:
		return Tone{FrequencyHz: 700, Duration: 50 * time.Millisecond, Repeat: 2}
	default:
		return Tone{}
	}
}

// Sink receives feedback events. Notify must not block for long; slow
// renderers should queue internally.
type Sink interface {
	Notify(ctx context.Context, e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Router fans events out to all registered sinks in registration order.
// Safe for concurrent use.
type Router struct {
	mu    sync.RWMutex
	sinks []Sink
	log   *slog.Logger
}

// NewRouter creates a Router with no sinks. Events routed before any sink
// registers are dropped.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// Register adds a sink. Registration order is delivery order.
func (r *Router) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Notify delivers e to every sink. A panicking sink is logged and skipped
// so one broken renderer cannot silence the rest.
func (r *Router) Notify(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()

	for _, s := range sinks {
		r.deliver(ctx, s, e)
	}
}

func (r *Router) deliver(ctx context.Context, s Sink, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("feedback sink panic", "kind", e.Kind, "panic", rec)
		}
	}()
	s.Notify(ctx, e)
}
