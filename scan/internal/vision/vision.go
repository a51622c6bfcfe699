// Package vision is the last-resort capture path: when the decoders get
// nothing out of the camera for long enough, a frame goes to an external
// vision model for identification.
//
// The Fallback escalates through three strategies, strictest first. Each
// retry loosens what the model is allowed to answer, so a printed code is
// always preferred over a visual guess.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
)

// GuardDelay is how long the camera must fail to decode before the
// fallback is consulted.
const GuardDelay = 3000 * time.Millisecond

// MaxAttempts bounds the escalation ladder.
const MaxAttempts = 3

// ErrUnidentified means every attempt came back empty.
var ErrUnidentified = errors.New("vision: product not identified")

// Strategy selects how permissive the model's answer may be.
type Strategy string

const (
	// StrategyStrict only accepts a printed code read off the packaging.
	StrategyStrict Strategy = "strict"
	// StrategyVisual accepts a product identification from packaging
	// appearance, code or not.
	StrategyVisual Strategy = "visual"
	// StrategyGuess accepts the model's best guess.
	StrategyGuess Strategy = "guess"
)

// Ladder is the escalation order.
var Ladder = [MaxAttempts]Strategy{StrategyStrict, StrategyVisual, StrategyGuess}

// PromptFor returns the instruction text for a strategy. Identifier
// implementations share these so behaviour does not drift per backend.
func PromptFor(s Strategy) string {
	switch s {
	case StrategyStrict:
		return "Read the printed barcode or product code digits visible in this image. " +
			"Answer with the code only. If no code is legible, answer UNKNOWN."
	case StrategyVisual:
		return "Identify the retail product in this image from its packaging. " +
			"Answer with the product name, and the printed code if one is legible. " +
			"If you cannot identify it, answer UNKNOWN."
	case StrategyGuess:
		return "Give your best guess for what retail product this image shows. " +
			"Answer with a product name. Only answer UNKNOWN if the image shows no product at all."
	default:
		return ""
	}
}

// Identification is one model answer.
type Identification struct {
	// Code is a printed code the model read, empty when it only
	// recognized the product visually.
	Code string
	// Name is the product name, empty for strict code reads.
	Name string
	// Strategy records which rung of the ladder produced the answer.
	Strategy Strategy
}

// Empty reports whether the answer carries nothing usable.
func (id *Identification) Empty() bool {
	return id == nil || (strings.TrimSpace(id.Code) == "" && strings.TrimSpace(id.Name) == "")
}

// Identifier submits a frame to a vision model. Implementations return a
// nil-safe Identification; an UNKNOWN answer maps to an empty one, not an
// error. Errors are transport failures.
type Identifier interface {
	Identify(ctx context.Context, img image.Image, s Strategy) (*Identification, error)
}

// IdentifierFunc adapts a function to the Identifier interface.
type IdentifierFunc func(ctx context.Context, img image.Image, s Strategy) (*Identification, error)

func (f IdentifierFunc) Identify(ctx context.Context, img image.Image, s Strategy) (*Identification, error) {
	return f(ctx, img, s)
}

// Fallback runs the escalation ladder against one Identifier.
type Fallback struct {
	id  Identifier
	log *slog.Logger
}

// NewFallback creates a Fallback.
func NewFallback(id Identifier, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{id: id, log: log}
}

// Run tries each strategy in ladder order until one yields a non-empty
// answer. Transport errors on one rung fall through to the next; if every
// rung fails or answers empty, the result wraps ErrUnidentified together
// with the last transport error, if any.
func (f *Fallback) Run(ctx context.Context, img image.Image) (*Identification, error) {
	var lastErr error
	for _, s := range Ladder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := f.id.Identify(ctx, img, s)
		if err != nil {
			f.log.Warn("vision attempt failed", "strategy", s, "error", err)
			lastErr = err
			continue
		}
		if id.Empty() {
			f.log.Debug("vision attempt empty", "strategy", s)
			continue
		}
		id.Strategy = s
		return id, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnidentified, lastErr)
	}
	return nil, ErrUnidentified
}
