package hid

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the listener rescans the bus for
// attached devices.
const DefaultPollInterval = 2 * time.Second

// Hooks receive decoded keystrokes and device lifecycle events. The
// keystroke hooks mirror the wedge buffer surface so the accumulator is
// shared code.
type Hooks struct {
	Rune   func(r rune)
	Enter  func()
	Escape func()
	// Attached fires after a matching device opens; Detached fires when
	// its report stream ends.
	Attached func(d Device)
	Detached func(d Device)
}

// Listener attaches to scanner devices on a Bus and forwards their
// keystrokes.
type Listener struct {
	bus    Bus
	filter Filter
	hooks  Hooks
	poll   time.Duration
	log    *slog.Logger

	mu       sync.Mutex
	attached map[uint32]struct{}
	denied   map[uint32]struct{}
	wg       sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPollInterval overrides the bus rescan period.
func WithPollInterval(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithLogger sets the listener logger.
func WithLogger(log *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if log != nil {
			l.log = log
		}
	}
}

// NewListener creates a Listener. A nil filter accepts every device.
func NewListener(bus Bus, filter Filter, hooks Hooks, opts ...ListenerOption) *Listener {
	if filter == nil {
		filter = AnyKeyboardScanner
	}
	l := &Listener{
		bus:      bus,
		filter:   filter,
		hooks:    hooks,
		poll:     DefaultPollInterval,
		log:      slog.Default(),
		attached: map[uint32]struct{}{},
		denied:   map[uint32]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls the bus until ctx is done, attaching to new matching devices
// and draining their reports. Returns after all device readers stop.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	l.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

// sweep attaches to matching devices that are not yet open.
func (l *Listener) sweep(ctx context.Context) {
	devices, err := l.bus.Devices(ctx)
	if err != nil {
		l.log.Warn("hid enumerate failed", "error", err)
		return
	}
	for _, d := range devices {
		if !l.filter(d) {
			continue
		}
		l.attach(ctx, d)
	}
}

func (l *Listener) attach(ctx context.Context, d Device) {
	l.mu.Lock()
	if _, open := l.attached[d.Key()]; open {
		l.mu.Unlock()
		return
	}
	if _, deny := l.denied[d.Key()]; deny {
		l.mu.Unlock()
		return
	}
	l.attached[d.Key()] = struct{}{}
	l.mu.Unlock()

	conn, err := l.bus.Open(ctx, d)
	if err != nil {
		l.mu.Lock()
		delete(l.attached, d.Key())
		switch {
		case errors.Is(err, ErrPermissionDenied):
			// Remember the denial; retrying every sweep would spam the host.
			l.denied[d.Key()] = struct{}{}
			l.log.Warn("hid device access denied", "product", d.Product, "vendor", d.VendorID)
		case errors.Is(err, ErrAborted):
			l.log.Info("hid device request aborted", "product", d.Product)
		case errors.Is(err, ErrNoDevice):
			// Device vanished between enumerate and open.
		default:
			l.log.Warn("hid open failed", "product", d.Product, "error", err)
		}
		l.mu.Unlock()
		return
	}

	l.log.Info("hid scanner attached", "product", d.Product, "vendor", d.VendorID, "device", d.ProductID)
	if l.hooks.Attached != nil {
		l.hooks.Attached(d)
	}
	l.wg.Add(1)
	go l.drain(ctx, d, conn)
}

// drain decodes reports until the device detaches or ctx is done.
func (l *Listener) drain(ctx context.Context, d Device, conn Conn) {
	defer l.wg.Done()
	defer conn.Close()
	defer func() {
		l.mu.Lock()
		delete(l.attached, d.Key())
		l.mu.Unlock()
		if l.hooks.Detached != nil {
			l.hooks.Detached(d)
		}
		l.log.Info("hid scanner detached", "product", d.Product)
	}()

	var dec decoder
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-conn.Reports():
			if !ok {
				return
			}
			for _, ev := range dec.Decode(report.Data) {
				l.dispatch(ev)
			}
		}
	}
}

func (l *Listener) dispatch(ev KeyEvent) {
	switch {
	case ev.Enter:
		if l.hooks.Enter != nil {
			l.hooks.Enter()
		}
	case ev.Escape:
		if l.hooks.Escape != nil {
			l.hooks.Escape()
		}
	default:
		if l.hooks.Rune != nil {
			l.hooks.Rune(ev.Rune)
		}
	}
}
