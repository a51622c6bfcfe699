package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/tillworks/scanpipe/feedback"
	"github.com/tillworks/scanpipe/scan/internal/decode"
	"github.com/tillworks/scanpipe/scan/internal/enhance"
	"github.com/tillworks/scanpipe/scan/internal/frame"
	"github.com/tillworks/scanpipe/scan/internal/vision"
)

// runCamera drives the camera capture path: acquire a stream, decode QR on
// every frame, push every LinearInterval-th barcode-looking frame through
// enhancement to the 1D decoder, and hand a frame to the vision fallback
// when nothing decodes for the guard period.
//
// Camera trouble degrades the pipeline instead of killing it; the wedge
// and HID paths keep working, so acquisition failure returns nil.
func (s *Service) runCamera(ctx context.Context) error {
	ctrl := frame.NewController(s.camera, nil, s.cfg.CameraStageTimeout, s.log)
	frames, err := ctrl.Start(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		s.log.Error("camera unavailable, continuing without it", "error", err)
		return nil
	}
	defer ctrl.Stop()

	s.mu.Lock()
	s.cameraActive = true
	s.cameraMode = ctrl.Mode().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cameraActive = false
		s.mu.Unlock()
		s.timers.Cancel(timerVision)
	}()

	w := &cameraWorker{svc: s}
	return w.run(ctx, frames)
}

// visionMaxWidth bounds the frame sent to the identification service.
const visionMaxWidth = 640

// patternCueInterval throttles the barcode-pattern cue.
const patternCueInterval = time.Second

// cameraWorker holds the per-stream decode state.
type cameraWorker struct {
	svc *Service

	lastPatternCue time.Time

	mu        sync.Mutex
	lastFrame image.Image
}

func (w *cameraWorker) run(ctx context.Context, frames <-chan frame.Frame) error {
	s := w.svc
	pool := enhance.NewPool(ctx, s.cfg.EnhanceWorkers)

	// The 1D decoder consumes enhanced frames on its own goroutine; zxing
	// readers are not safe to share, so it owns one.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dec := decode.New()
		for res := range pool.Results() {
			if r, err := dec.Linear(res.Img); err == nil && r.Accepted() {
				w.decoded(ctx, r)
			}
		}
	}()

	w.armGuard(ctx)
	dec := decode.New()
	var seq int64

	for {
		select {
		case <-ctx.Done():
			pool.Close()
			wg.Wait()
			return ctx.Err()
		case fr, ok := <-frames:
			if !ok {
				pool.Close()
				wg.Wait()
				s.log.Warn("camera stream ended")
				return nil
			}
			if fr.Image == nil || fr.Image.Bounds().Empty() {
				continue
			}
			seq++
			img := enhance.Downscale(fr.Image, s.cfg.MaxFrameWidth)
			w.mu.Lock()
			w.lastFrame = img
			w.mu.Unlock()

			if r, err := dec.QR(img); err == nil && r.Accepted() {
				w.decoded(ctx, r)
				continue
			}
			// The pattern heuristic is feedback only: bars in the frame
			// beep at the operator while the decoders catch up.
			if decode.LooksLikeBarcode(enhance.Gray(img)) &&
				time.Since(w.lastPatternCue) > patternCueInterval {
				w.lastPatternCue = time.Now()
				s.notify(ctx, feedback.Event{Kind: feedback.KindDetect})
			}
			if seq%decode.LinearInterval == 0 {
				pool.Submit(enhance.Job{Seq: seq, Img: img})
			}
		}
	}
}

// decoded forwards a successful decode and pushes the vision guard back.
func (w *cameraWorker) decoded(ctx context.Context, r *decode.Result) {
	s := w.svc
	if err := s.Submit(ctx, SourceCamera, r.Code); err != nil {
		s.log.Debug("camera decode rejected", "code", r.Code, "symbology", r.Symbology, "error", err)
	}
	w.armGuard(ctx)
}

// armGuard schedules the vision fallback for when decoding stays quiet.
func (w *cameraWorker) armGuard(ctx context.Context) {
	s := w.svc
	if s.vision == nil {
		return
	}
	s.timers.Schedule(timerVision, s.cfg.VisionGuard, func() {
		w.consultVision(ctx)
	})
}

// consultVision sends the latest frame up the identification ladder. The
// guard fires once per quiet period; only the next successful decode
// re-arms it, so an undecodable scene costs one identification, not a
// metered call every few seconds.
func (w *cameraWorker) consultVision(ctx context.Context) {
	s := w.svc
	w.mu.Lock()
	img := w.lastFrame
	w.mu.Unlock()
	if img == nil {
		// Nothing captured yet; no call was spent, so try again later.
		w.armGuard(ctx)
		return
	}

	prepared := enhance.Apply(enhance.Downscale(img, visionMaxWidth))
	id, err := s.vision.Run(ctx, prepared)
	if err != nil {
		if !errors.Is(err, vision.ErrUnidentified) && !errors.Is(err, context.Canceled) {
			s.log.Warn("vision fallback failed", "error", err)
		}
		return
	}
	s.handleIdentification(ctx, id)
}
