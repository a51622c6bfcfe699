package frame

import (
	"context"
	"errors"
	"testing"
)

func TestController_StartStop(t *testing.T) {
	// WHAT: Start acquires a stream, records the winning mode, and Stop
	// closes the stream and clears the active flag.
	// WHY: The stream handle has exactly one owner; release must be
	// deterministic on every path out of the capture loop.
	dev := &fakeDevice{}
	ctrl := NewController(dev, nil, 0, nil)

	if ctrl.IsActive() {
		t.Fatal("active before Start")
	}
	frames, err := ctrl.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if frames == nil {
		t.Fatal("nil frame channel")
	}
	if !ctrl.IsActive() {
		t.Fatal("not active after Start")
	}
	if ctrl.Mode().String() != "1280x720" {
		t.Fatalf("mode = %s", ctrl.Mode())
	}

	if err := ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
	if ctrl.IsActive() {
		t.Fatal("still active after Stop")
	}
	if !dev.last.closed {
		t.Fatal("stream not closed by Stop")
	}
}

func TestController_DoubleStart(t *testing.T) {
	// WHAT: Starting an active controller fails; after Stop it works again.
	// WHY: Two concurrent streams from one camera is a driver fight.
	dev := &fakeDevice{}
	ctrl := NewController(dev, nil, 0, nil)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	ctrl.Stop()
}

func TestController_StopIdempotent(t *testing.T) {
	// WHAT: Stop on an inactive controller is a no-op.
	// WHY: Deferred and explicit stops overlap during shutdown.
	ctrl := NewController(&fakeDevice{}, nil, 0, nil)
	if err := ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestController_StartFailureClearsActive(t *testing.T) {
	// WHAT: A failed acquisition leaves the controller inactive.
	// WHY: A retry after camera trouble must not hit ErrAlreadyStarted.
	dev := &fakeDevice{fails: map[string]error{"1280x720": ErrPermissionDenied}}
	ctrl := NewController(dev, nil, 0, nil)
	if _, err := ctrl.Start(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if ctrl.IsActive() {
		t.Fatal("active after failed Start")
	}
}
