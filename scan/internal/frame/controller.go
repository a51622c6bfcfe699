package frame

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyStarted means Start was called on an active controller.
var ErrAlreadyStarted = errors.New("frame: controller already started")

// Controller gives a camera stream an explicit lifecycle. Start runs the
// staged acquisition and holds the stream; Stop releases it. Every exit
// path from the capture loop goes through Stop, so the device handle is
// never left dangling on a stop function stashed somewhere else.
type Controller struct {
	dev          Device
	stages       []Constraints
	stageTimeout time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	active bool
	stream Stream
	mode   Constraints
}

// NewController wires a controller for dev. Nil stages means the default
// ladder; a zero timeout means DefaultStageTimeout.
func NewController(dev Device, stages []Constraints, stageTimeout time.Duration, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{dev: dev, stages: stages, stageTimeout: stageTimeout, log: log}
}

// Start acquires a stream and returns its frame channel. An active
// controller must be stopped before it can start again.
func (c *Controller) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	c.active = true
	c.mu.Unlock()

	stream, mode, err := Acquire(ctx, c.dev, c.stages, c.stageTimeout, c.log)
	if err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.stream = stream
	c.mode = mode
	c.mu.Unlock()
	return stream.Frames(), nil
}

// Stop closes the held stream. Stopping an inactive controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.active = false
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// IsActive reports whether the controller holds a stream or is acquiring.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Mode returns the constraints the acquisition settled on. Meaningful only
// while active.
func (c *Controller) Mode() Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
