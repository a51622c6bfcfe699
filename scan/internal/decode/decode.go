// Package decode extracts product codes from camera frames.
//
// QR decoding runs on every frame; linear (1D) decoding is heavier and
// runs on every LinearInterval-th frame, after enhancement. Confidence is
// derived from the symbology's own error detection: a checksummed format
// that decodes cleanly is trustworthy, a raw one is not.
package decode

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode means the frame contains no decodable code.
var ErrNoCode = errors.New("decode: no code in frame")

// LinearInterval is the frame cadence for 1D decoding: every 5th frame.
const LinearInterval = 5

// acceptConfidence and acceptLength gate which decodes reach the pipeline:
// a result passes with confidence above 30 or a code of at least 8
// characters.
const (
	acceptConfidence = 30
	acceptLength     = 8
)

// Symbology names the decoded format.
type Symbology string

const (
	SymQR      Symbology = "qr"
	SymEAN13   Symbology = "ean13"
	SymEAN8    Symbology = "ean8"
	SymUPCA    Symbology = "upca"
	SymUPCE    Symbology = "upce"
	SymCode128 Symbology = "code128"
	SymCode39  Symbology = "code39"
	SymITF     Symbology = "itf"
	SymUnknown Symbology = "unknown"
)

// Result is one successful decode.
type Result struct {
	Code       string
	Symbology  Symbology
	Confidence int // 0..100
}

// Accepted reports whether the result clears the acceptance gate.
func (r *Result) Accepted() bool {
	return r.Confidence > acceptConfidence || len(r.Code) >= acceptLength
}

// Decoder wraps the zxing readers. Not safe for concurrent use; each
// worker owns one.
type Decoder struct {
	qr     gozxing.Reader
	linear []gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// New creates a Decoder with try-harder hints enabled. The linear chain
// covers the retail checksummed formats first, then the raw ones.
func New() *Decoder {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &Decoder{
		qr: qrcode.NewQRCodeReader(),
		linear: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(hints),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			oned.NewITFReader(),
		},
		hints: hints,
	}
}

// QR attempts a QR decode. Frames without a QR code return ErrNoCode.
func (d *Decoder) QR(img image.Image) (*Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode: bitmap: %w", err)
	}
	return d.decode(d.qr, bmp)
}

// Linear attempts a 1D decode across the supported linear symbologies.
// Callers should enhance the frame first.
func (d *Decoder) Linear(img image.Image) (*Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode: bitmap: %w", err)
	}
	var lastErr error
	for _, r := range d.linear {
		res, err := d.decode(r, bmp)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (d *Decoder) decode(reader gozxing.Reader, bmp *gozxing.BinaryBitmap) (*Result, error) {
	res, err := reader.Decode(bmp, d.hints)
	if err != nil {
		reader.Reset()
		return nil, fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	reader.Reset()
	sym := symbologyOf(res.GetBarcodeFormat())
	return &Result{
		Code:       res.GetText(),
		Symbology:  sym,
		Confidence: confidenceOf(sym),
	}, nil
}

func symbologyOf(f gozxing.BarcodeFormat) Symbology {
	switch f {
	case gozxing.BarcodeFormat_QR_CODE:
		return SymQR
	case gozxing.BarcodeFormat_EAN_13:
		return SymEAN13
	case gozxing.BarcodeFormat_EAN_8:
		return SymEAN8
	case gozxing.BarcodeFormat_UPC_A:
		return SymUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return SymUPCE
	case gozxing.BarcodeFormat_CODE_128:
		return SymCode128
	case gozxing.BarcodeFormat_CODE_39:
		return SymCode39
	case gozxing.BarcodeFormat_ITF:
		return SymITF
	default:
		return SymUnknown
	}
}

// confidenceOf scores a decode by how much error detection the symbology
// itself provides. QR carries Reed-Solomon correction; the retail formats
// carry a check digit; Code 39 and ITF have none.
func confidenceOf(s Symbology) int {
	switch s {
	case SymQR:
		return 95
	case SymEAN13, SymEAN8, SymUPCA, SymUPCE, SymCode128:
		return 90
	case SymCode39, SymITF:
		return 40
	default:
		return 20
	}
}
