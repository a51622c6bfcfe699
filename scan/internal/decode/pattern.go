package decode

import "image"

// Pattern heuristic thresholds. A sampled row counts as barcode-like when
// its black/white transition density and its dark/light balance both clear
// these floors.
const (
	minTransitionRatio = 0.05
	minBalanceRatio    = 0.06
	binarizeThreshold  = 128
)

// rowPositions are the sampled heights, as fractions of the frame. The
// cluster around the middle weights the band where a held product sits.
var rowPositions = []float64{0.15, 0.25, 0.35, 0.45, 0.50, 0.55, 0.65, 0.75, 0.85}

// LooksLikeBarcode reports whether the frame plausibly contains a linear
// code: any sampled row with bar-like structure is enough. The signal
// drives an operator cue only; it never gates the decoders.
func LooksLikeBarcode(img *image.Gray) bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 16 || h < 8 {
		return false
	}

	for _, pos := range rowPositions {
		y := b.Min.Y + int(float64(h)*pos)
		if y >= b.Max.Y {
			y = b.Max.Y - 1
		}
		if rowQualifies(img, y, b.Min.X, b.Max.X) {
			return true
		}
	}
	return false
}

// rowQualifies scans one row for bar-like structure.
func rowQualifies(img *image.Gray, y, x0, x1 int) bool {
	w := x1 - x0
	transitions := 0
	dark := 0

	prevDark := img.GrayAt(x0, y).Y < binarizeThreshold
	if prevDark {
		dark++
	}
	for x := x0 + 1; x < x1; x++ {
		isDark := img.GrayAt(x, y).Y < binarizeThreshold
		if isDark {
			dark++
		}
		if isDark != prevDark {
			transitions++
			prevDark = isDark
		}
	}

	light := w - dark
	balance := dark
	if light < dark {
		balance = light
	}
	return float64(transitions)/float64(w) > minTransitionRatio &&
		float64(balance)/float64(w) > minBalanceRatio
}
