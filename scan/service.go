// Package scan wires the capture sources into one checkout pipeline: codes
// arrive from the camera decoders, the keyboard wedge, USB HID scanners or
// the vision fallback, pass a dedup gate, resolve against the catalog and
// land in the cart. Timers watch the lane: an idle cart is read back to
// the operator, and a cart with enough lines is flushed to the sales log
// after a quiet period.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tillworks/scanpipe/cart"
	"github.com/tillworks/scanpipe/catalog"
	"github.com/tillworks/scanpipe/feedback"
	"github.com/tillworks/scanpipe/idgen"
	"github.com/tillworks/scanpipe/scan/internal/dedup"
	"github.com/tillworks/scanpipe/scan/internal/frame"
	"github.com/tillworks/scanpipe/scan/internal/hid"
	"github.com/tillworks/scanpipe/scan/internal/timers"
	"github.com/tillworks/scanpipe/scan/internal/vision"
	"github.com/tillworks/scanpipe/scan/internal/wedge"
	"github.com/tillworks/scanpipe/stats"
)

// Timer names.
const (
	timerIdle    = "idle"
	timerPersist = "persist"
	timerVision  = "vision"
)

// Service is the pipeline coordinator. Construct with New, start the
// background sources with Run, feed codes with Submit.
type Service struct {
	cfg      Config
	log      *slog.Logger
	resolver catalog.Resolver

	cart      *cart.Cart
	persister cart.Persister
	registrar Registrar
	router    *feedback.Router
	recorder  *stats.Recorder
	newID     idgen.Generator

	camera    frame.Device
	hidBus    hid.Bus
	hidFilter hid.Filter
	refocus   func()
	visionID  VisionIdentifier
	vision    *vision.Fallback

	gate     *dedup.Gate
	timers   *timers.Set
	wedge    *wedge.Buffer
	hidWedge *wedge.Buffer

	// flushMu serializes cart mutations against the snapshot-persist-clear
	// sequence in Flush, so a code accepted mid-flush lands in the next
	// cart instead of being wiped by Clear.
	flushMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	running      bool
	cameraActive bool
	cameraMode   string
	usbConnected bool
	usbDevice    string
	lastScanAt   time.Time
	lastCode     string
	lastSource   Source
	salesFlushed int64
	promptIdx    int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPersister enables sale flushing (manual and automatic).
func WithPersister(p cart.Persister) Option {
	return func(s *Service) { s.persister = p }
}

// WithRegistrar lets the vision path add identified products that carry
// no readable code.
func WithRegistrar(r Registrar) Option {
	return func(s *Service) { s.registrar = r }
}

// WithFeedback routes operator cues through r.
func WithFeedback(r *feedback.Router) Option {
	return func(s *Service) { s.router = r }
}

// WithStats records pipeline events.
func WithStats(r *stats.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithIDGenerator overrides sale id generation.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithCamera enables the camera capture path.
func WithCamera(dev CameraDevice) Option {
	return func(s *Service) { s.camera = dev }
}

// WithHID enables the USB scanner path. A nil filter accepts any device.
func WithHID(bus HIDBus, filter func(HIDDevice) bool) Option {
	return func(s *Service) {
		s.hidBus = bus
		s.hidFilter = filter
	}
}

// WithVision enables the fallback identification path.
func WithVision(id VisionIdentifier) Option {
	return func(s *Service) { s.visionID = id }
}

// WithRefocus sets the hook the wedge refocus loop re-arms.
func WithRefocus(focus func()) Option {
	return func(s *Service) { s.refocus = focus }
}

// New creates a Service. resolver is required; everything else is optional
// and enabled through options.
func New(cfg Config, resolver catalog.Resolver, opts ...Option) (*Service, error) {
	if resolver == nil {
		return nil, fmt.Errorf("scan: resolver is required")
	}
	cfg.defaults()

	s := &Service{
		cfg:      cfg,
		log:      slog.Default(),
		resolver: resolver,
		cart:     cart.New(cfg.TaxRate),
		newID:    idgen.Prefixed("sale_", idgen.Default),
		gate:     dedup.New(cfg.DedupWindow),
		timers:   timers.NewSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.visionID != nil {
		s.vision = vision.NewFallback(s.visionID, s.log)
	}
	wedgeCfg := wedge.Config{
		MaxLen:          cfg.WedgeMaxLen,
		RefocusInterval: cfg.WedgeRefocusInterval,
	}
	s.wedge = wedge.New(wedgeCfg, func(code string) {
		if err := s.Submit(context.Background(), SourceWedge, code); err != nil {
			s.log.Debug("wedge submit rejected", "error", err)
		}
	}, s.log)
	// HID scanners get their own accumulator so their codes keep their
	// source identity in stats and status.
	s.hidWedge = wedge.New(wedgeCfg, func(code string) {
		if err := s.Submit(context.Background(), SourceHID, code); err != nil {
			s.log.Debug("hid submit rejected", "error", err)
		}
	}, s.log)
	return s, nil
}

// Run starts the background sources and blocks until ctx is done. Submit
// works before and during Run; sources that were not configured are
// simply skipped.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.timers.Schedule(timerIdle, s.cfg.IdleAfter, s.announceIdle)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)

	if s.camera != nil {
		g.Go(func() error { return s.runCamera(ctx) })
	}
	if s.hidBus != nil {
		listener := hid.NewListener(s.hidBus, s.hidFilter, hid.Hooks{
			Rune:   s.hidWedge.Rune,
			Enter:  func() { s.hidWedge.Enter() },
			Escape: s.hidWedge.Escape,
			Attached: func(d hid.Device) {
				s.mu.Lock()
				s.usbConnected = true
				s.usbDevice = d.Product
				s.mu.Unlock()
			},
			Detached: func(d hid.Device) {
				s.mu.Lock()
				s.usbConnected = false
				s.usbDevice = ""
				s.mu.Unlock()
			},
		}, hid.WithLogger(s.log), hid.WithPollInterval(s.cfg.HIDPollInterval))
		g.Go(func() error { return listener.Run(ctx) })
	}
	if s.refocus != nil {
		g.Go(func() error {
			s.wedge.RunRefocus(ctx, s.refocus)
			return ctx.Err()
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := g.Wait()
	s.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close cancels pending timers and rejects further submissions.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.timers.Close()
}

// Wedge returns the keystroke hooks for a host-driven keyboard wedge:
// printable runes, Enter to finalize, Escape to discard.
func (s *Service) Wedge() (key func(rune), enter func(), escape func()) {
	return s.wedge.Rune, func() { s.wedge.Enter() }, s.wedge.Escape
}

// Submit feeds one code into the pipeline. It dedups, resolves and adds
// to the cart synchronously, so the caller knows the outcome: nil on a
// new cart line, ErrDuplicate on a suppressed repeat, a catalog not-found
// error on an unknown code.
func (s *Service) Submit(ctx context.Context, source Source, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyCode
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	start := time.Now()
	if !s.gate.Admit(code) {
		s.record(stats.Event{Source: string(source), Outcome: stats.OutcomeDuplicate, Code: code})
		s.notify(ctx, feedback.Event{Kind: feedback.KindReject, Code: code})
		return fmt.Errorf("%w: %s", ErrDuplicate, code)
	}

	s.notify(ctx, feedback.Event{Kind: feedback.KindDetect, Code: code})

	p, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		s.record(stats.Event{Source: string(source), Outcome: stats.OutcomeUnresolved, Code: code, Duration: time.Since(start)})
		s.notify(ctx, feedback.Event{Kind: feedback.KindError, Code: code, Text: "Unknown product"})
		s.log.Warn("code not resolved", "code", code, "source", source)
		return err
	}

	s.addProduct(ctx, source, code, p, start)
	return nil
}

// addProduct puts a resolved product in the cart and does the shared
// bookkeeping: status, cues, stats and timer rescheduling.
func (s *Service) addProduct(ctx context.Context, source Source, code string, p *catalog.Product, start time.Time) {
	s.flushMu.Lock()
	s.cart.Add(cart.Item{Ref: p.ID, Name: p.Name, Barcode: p.Barcode, UnitPrice: p.UnitPrice})
	s.flushMu.Unlock()

	s.mu.Lock()
	s.lastScanAt = time.Now()
	s.lastCode = code
	s.lastSource = source
	s.mu.Unlock()

	s.record(stats.Event{Source: string(source), Outcome: stats.OutcomeAccepted, Code: code, Duration: time.Since(start)})
	s.notify(ctx, feedback.Event{Kind: feedback.KindSuccess, Code: code, Text: p.Name})
	s.log.Info("product added", "code", code, "product", p.Name, "source", source, "lines", s.cart.Len())

	s.rescheduleTimers()
}

// rescheduleTimers pushes the idle deadline back and keeps the auto-flush
// debounce trailing the latest scan while the cart is eligible.
func (s *Service) rescheduleTimers() {
	s.timers.Schedule(timerIdle, s.cfg.IdleAfter, s.announceIdle)
	if s.persister != nil && s.cart.Len() >= s.cfg.PersistMinLines {
		s.timers.Schedule(timerPersist, s.cfg.PersistAfter, s.autoFlush)
	} else {
		s.timers.Cancel(timerPersist)
	}
}

// RemoveLine removes a cart line and re-evaluates the flush debounce.
func (s *Service) RemoveLine(ref string) bool {
	s.flushMu.Lock()
	ok := s.cart.RemoveLine(ref)
	s.flushMu.Unlock()
	if ok {
		s.rescheduleTimers()
	}
	return ok
}

// Cart returns a snapshot of the in-progress sale.
func (s *Service) Cart() cart.Snapshot {
	return s.cart.Snapshot()
}

// Status returns the live pipeline state.
func (s *Service) Status() Status {
	snap := s.cart.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		CameraActive: s.cameraActive,
		CameraMode:   s.cameraMode,
		GunListening: s.running,
		USBConnected: s.usbConnected,
		USBDevice:    s.usbDevice,
		Lines:        len(snap.Lines),
		Units:        snap.Units(),
		Total:        snap.Total,
		LastScanAt:   s.lastScanAt,
		LastCode:     s.lastCode,
		LastSource:   s.lastSource,
		SalesFlushed: s.salesFlushed,
	}
}

// Flush settles the current cart: assigns a sale id, persists, clears the
// cart and resets the dedup gate. Returns the persisted sale.
func (s *Service) Flush(ctx context.Context) (*cart.Sale, error) {
	if s.persister == nil {
		return nil, fmt.Errorf("scan: no persister configured")
	}

	// Hold the gate across snapshot, persist and clear: a code accepted
	// while the persister is writing waits here and lands in the next cart.
	s.flushMu.Lock()
	snap := s.cart.Snapshot()
	if len(snap.Lines) == 0 {
		s.flushMu.Unlock()
		return nil, ErrEmptyCart
	}

	sale := &cart.Sale{
		ID:        s.newID(),
		CreatedAt: time.Now(),
		Snapshot:  snap,
	}
	if err := s.persister.Persist(ctx, sale); err != nil {
		s.flushMu.Unlock()
		s.notify(ctx, feedback.Event{Kind: feedback.KindError, Text: "Sale could not be saved"})
		s.record(stats.Event{Source: "system", Outcome: stats.OutcomeError})
		return nil, fmt.Errorf("scan: flush: %w", err)
	}

	s.cart.Clear()
	s.gate.Reset()
	s.flushMu.Unlock()
	s.timers.Cancel(timerPersist)
	// The lane is empty again; let the idle monitor start prompting.
	s.timers.Schedule(timerIdle, s.cfg.IdleAfter, s.announceIdle)

	s.mu.Lock()
	s.salesFlushed++
	s.mu.Unlock()

	s.notify(ctx, feedback.Event{Kind: feedback.KindSuccess,
		Text: fmt.Sprintf("Sale saved, total %s", formatMinor(sale.Total))})
	s.log.Info("sale persisted", "sale", sale.ID, "lines", len(sale.Lines), "total", sale.Total)
	return sale, nil
}

// autoFlush is the debounce callback. A cart that shrank below the
// eligibility floor since scheduling is left alone.
func (s *Service) autoFlush() {
	if s.cart.Len() < s.cfg.PersistMinLines {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.Flush(ctx); err != nil {
		s.log.Error("auto flush failed", "error", err)
	}
}

// announceIdle reads the cart back after a quiet period, or prompts an
// empty lane. Empty-lane prompts rotate and re-arm so an abandoned till
// keeps nudging.
func (s *Service) announceIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := s.cart.Snapshot()
	if len(snap.Lines) > 0 {
		s.notify(ctx, feedback.Event{
			Kind: feedback.KindSummary,
			Text: fmt.Sprintf("%d items, total %s", snap.Units(), formatMinor(snap.Total)),
			Cart: &snap,
		})
		return
	}

	s.mu.Lock()
	prompt := s.cfg.IdlePrompts[s.promptIdx%len(s.cfg.IdlePrompts)]
	s.promptIdx++
	s.mu.Unlock()

	s.notify(ctx, feedback.Event{Kind: feedback.KindPrompt, Text: prompt})
	s.timers.Schedule(timerIdle, s.cfg.IdleAfter, s.announceIdle)
}

// handleIdentification routes a vision answer: a read code goes through
// the normal submit path; a code-less identification goes to the
// registrar, which decides whether the product may enter the catalog.
func (s *Service) handleIdentification(ctx context.Context, id *Identification) {
	if id.Code != "" {
		if err := s.Submit(ctx, SourceVision, id.Code); err != nil {
			s.log.Warn("vision code rejected", "code", id.Code, "error", err)
		}
		return
	}
	if s.registrar == nil {
		s.log.Info("vision identification dropped, no registrar", "name", id.Name)
		s.notify(ctx, feedback.Event{Kind: feedback.KindError, Text: "Product not recognized"})
		return
	}
	p, err := s.registrar.Register(ctx, id)
	if err != nil {
		s.record(stats.Event{Source: string(SourceVision), Outcome: stats.OutcomeUnresolved})
		s.notify(ctx, feedback.Event{Kind: feedback.KindError, Text: "Product not recognized"})
		s.log.Warn("vision registration failed", "name", id.Name, "error", err)
		return
	}
	s.addProduct(ctx, SourceVision, p.Barcode, p, time.Now())
}

func (s *Service) notify(ctx context.Context, e feedback.Event) {
	if s.router != nil {
		s.router.Notify(ctx, e)
	}
}

func (s *Service) record(e stats.Event) {
	if s.recorder != nil {
		s.recorder.Record(e)
	}
}

// formatMinor renders minor currency units as a decimal string.
func formatMinor(v int64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}
