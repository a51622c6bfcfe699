// Package frame acquires video frames from a camera device.
//
// Opening a camera is staged: a preferred high resolution first, then a
// reduced one, then whatever the device gives. Each stage gets a bounded
// timeout so a camera that hangs on an unsupported mode cannot stall the
// pipeline start. The Device interface keeps the host camera stack out of
// the pipeline; tests run against a fake.
package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

var (
	// ErrNoCamera means no capture device is available.
	ErrNoCamera = errors.New("frame: no camera available")
	// ErrPermissionDenied means the host refused camera access.
	ErrPermissionDenied = errors.New("frame: camera access denied")
	// ErrExhausted means every acquisition stage failed.
	ErrExhausted = errors.New("frame: all acquisition stages failed")
)

// Size is a requested capture resolution.
type Size struct {
	Width  int
	Height int
}

// Constraints describe one acquisition attempt. A zero Size means
// unconstrained: the device picks.
type Constraints struct {
	Size Size
}

// Unconstrained reports whether the device is free to pick a mode.
func (c Constraints) Unconstrained() bool { return c.Size == (Size{}) }

func (c Constraints) String() string {
	if c.Unconstrained() {
		return "unconstrained"
	}
	return fmt.Sprintf("%dx%d", c.Size.Width, c.Size.Height)
}

// Frame is one captured image.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Stream delivers frames until closed. Frames closes when the device stops.
type Stream interface {
	Frames() <-chan Frame
	Close() error
}

// Device opens capture streams. Open must respect ctx cancellation.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Acquisition stage bounds.
const (
	minStageTimeout = 2 * time.Second
	maxStageTimeout = 5 * time.Second

	// DefaultStageTimeout is the per-stage open timeout.
	DefaultStageTimeout = 4 * time.Second
)

// DefaultStages is the standard constraint ladder: full working
// resolution, a reduced fallback, then whatever the camera offers.
func DefaultStages() []Constraints {
	return []Constraints{
		{Size: Size{Width: 1280, Height: 720}},
		{Size: Size{Width: 640, Height: 480}},
		{},
	}
}

// Acquire walks the stages in order and returns the first stream that
// opens, together with the constraints that won. Permission denials abort
// immediately; retrying other modes will not help. Every other stage
// failure falls through to the next stage.
func Acquire(ctx context.Context, dev Device, stages []Constraints, stageTimeout time.Duration, log *slog.Logger) (Stream, Constraints, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	if stageTimeout < minStageTimeout {
		stageTimeout = minStageTimeout
	}
	if stageTimeout > maxStageTimeout {
		stageTimeout = maxStageTimeout
	}

	var lastErr error
	for _, c := range stages {
		if err := ctx.Err(); err != nil {
			return nil, Constraints{}, err
		}
		stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
		stream, err := dev.Open(stageCtx, c)
		cancel()
		if err == nil {
			log.Info("camera acquired", "constraints", c.String())
			return stream, c, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return nil, Constraints{}, err
		}
		log.Warn("camera stage failed", "constraints", c.String(), "error", err)
		lastErr = err
	}
	return nil, Constraints{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
