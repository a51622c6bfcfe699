package scan

import "time"

// Config tunes the pipeline. The zero value is usable; defaults() fills
// every field the way a till expects them.
type Config struct {
	// DedupWindow suppresses repeat reads of the same code.
	DedupWindow time.Duration
	// IdleAfter is how long without a scan before the cart is read back
	// (or an empty lane is prompted).
	IdleAfter time.Duration
	// PersistAfter is the trailing debounce before an eligible cart is
	// flushed automatically.
	PersistAfter time.Duration
	// PersistMinLines is how many distinct lines make a cart eligible for
	// auto-flush.
	PersistMinLines int
	// VisionGuard is how long the camera may fail to decode before a
	// frame goes to the vision fallback.
	VisionGuard time.Duration
	// TaxRate applies to new carts, e.g. 0.18 for 18% VAT.
	TaxRate float64
	// EnhanceWorkers bounds the frame preprocessing pool. Zero means
	// GOMAXPROCS.
	EnhanceWorkers int
	// MaxFrameWidth downscales wider frames before decoding. Zero
	// disables downscaling.
	MaxFrameWidth int
	// CameraStageTimeout bounds each camera acquisition stage.
	CameraStageTimeout time.Duration
	// WedgeMaxLen caps the keystroke buffer.
	WedgeMaxLen int
	// WedgeRefocusInterval is the capture target re-arm period.
	WedgeRefocusInterval time.Duration
	// HIDPollInterval is the bus rescan period.
	HIDPollInterval time.Duration
	// IdlePrompts rotate on consecutive empty-lane announcements.
	IdlePrompts []string
}

func (c *Config) defaults() {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 1000 * time.Millisecond
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 4000 * time.Millisecond
	}
	if c.PersistAfter <= 0 {
		c.PersistAfter = 5000 * time.Millisecond
	}
	if c.PersistMinLines <= 0 {
		c.PersistMinLines = 3
	}
	if c.VisionGuard <= 0 {
		c.VisionGuard = 3000 * time.Millisecond
	}
	if c.TaxRate < 0 {
		c.TaxRate = 0
	}
	if c.MaxFrameWidth < 0 {
		c.MaxFrameWidth = 0
	}
	if len(c.IdlePrompts) == 0 {
		c.IdlePrompts = []string{
			"Ready to scan",
			"Scan the next item or ask for assistance",
		}
	}
}
