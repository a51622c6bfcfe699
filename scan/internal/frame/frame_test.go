package frame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDevice scripts per-constraint outcomes.
type fakeDevice struct {
	mu    sync.Mutex
	fails map[string]error // constraint string -> open error; missing = success
	hang  map[string]bool  // constraint string -> block until ctx done
	opens []string
	last  *fakeStream
}

func (d *fakeDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	d.opens = append(d.opens, c.String())
	err := d.fails[c.String()]
	hang := d.hang[c.String()]
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	s := &fakeStream{ch: make(chan Frame)}
	d.mu.Lock()
	d.last = s
	d.mu.Unlock()
	return s, nil
}

type fakeStream struct {
	ch     chan Frame
	once   sync.Once
	closed bool
}

func (s *fakeStream) Frames() <-chan Frame { return s.ch }
func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
	})
	return nil
}

func TestAcquire_FirstStageWins(t *testing.T) {
	// WHAT: When the preferred resolution opens, later stages are untried.
	// WHY: The ladder exists for fallback, not for probing every mode.
	dev := &fakeDevice{}
	stream, c, err := Acquire(context.Background(), dev, nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if c.String() != "1280x720" {
		t.Fatalf("won constraints %s, want 1280x720", c)
	}
	if len(dev.opens) != 1 {
		t.Fatalf("opens = %v, want one attempt", dev.opens)
	}
}

func TestAcquire_FallsThroughStages(t *testing.T) {
	// WHAT: A failing stage falls through to the next; the reduced mode
	// and finally the unconstrained mode get their turn.
	// WHY: Cheap webcams reject modes they advertise.
	dev := &fakeDevice{fails: map[string]error{
		"1280x720": errors.New("mode unsupported"),
		"640x480":  errors.New("mode unsupported"),
	}}
	stream, c, err := Acquire(context.Background(), dev, nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if !c.Unconstrained() {
		t.Fatalf("won constraints %s, want unconstrained", c)
	}
	want := []string{"1280x720", "640x480", "unconstrained"}
	if len(dev.opens) != 3 {
		t.Fatalf("opens = %v, want %v", dev.opens, want)
	}
}

func TestAcquire_AllStagesFail(t *testing.T) {
	// WHAT: When every stage fails, the error matches ErrExhausted and
	// wraps the last stage failure.
	// WHY: The caller reports one actionable error, not three.
	cause := errors.New("device busy")
	dev := &fakeDevice{fails: map[string]error{
		"1280x720":      cause,
		"640x480":       cause,
		"unconstrained": cause,
	}}
	_, _, err := Acquire(context.Background(), dev, nil, 0, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestAcquire_PermissionDeniedAborts(t *testing.T) {
	// WHAT: A permission denial stops the ladder immediately.
	// WHY: The host refused the camera, not the mode; retries just
	// re-prompt the operator.
	dev := &fakeDevice{fails: map[string]error{
		"1280x720": ErrPermissionDenied,
	}}
	_, _, err := Acquire(context.Background(), dev, nil, 0, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(dev.opens) != 1 {
		t.Fatalf("opens = %v, want ladder aborted after first", dev.opens)
	}
}

func TestAcquire_StageTimeout(t *testing.T) {
	// WHAT: A hanging stage is abandoned after its timeout and the next
	// stage still runs.
	// WHY: Some drivers block forever on unsupported modes.
	dev := &fakeDevice{hang: map[string]bool{"1280x720": true}}
	stages := []Constraints{
		{Size: Size{Width: 1280, Height: 720}},
		{},
	}
	start := time.Now()
	stream, c, err := Acquire(context.Background(), dev, stages, minStageTimeout, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if !c.Unconstrained() {
		t.Fatalf("won %s, want unconstrained", c)
	}
	if elapsed := time.Since(start); elapsed < minStageTimeout {
		t.Fatalf("fell through in %v, before the stage timeout", elapsed)
	}
}

func TestAcquire_TimeoutClamped(t *testing.T) {
	// WHAT: Out-of-range stage timeouts clamp to the supported band.
	// WHY: A sub-second timeout flaps on slow cameras; a minute-long one
	// stalls startup.
	dev := &fakeDevice{hang: map[string]bool{"1280x720": true}}
	stages := []Constraints{{Size: Size{Width: 1280, Height: 720}}, {}}

	start := time.Now()
	stream, _, err := Acquire(context.Background(), dev, stages, time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if elapsed := time.Since(start); elapsed < minStageTimeout {
		t.Fatalf("timeout not clamped up: stage took %v", elapsed)
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	// WHAT: A cancelled context stops the ladder between stages.
	// WHY: Service shutdown must not wait out camera timeouts.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev := &fakeDevice{fails: map[string]error{"1280x720": errors.New("x")}}
	_, _, err := Acquire(ctx, dev, nil, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
