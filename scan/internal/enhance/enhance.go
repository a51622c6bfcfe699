// Package enhance preprocesses camera frames for linear barcode decoding.
//
// Linear symbologies are far more sensitive to focus and lighting than QR,
// so frames headed for the 1D decoder first get a contrast stretch, a
// sharpening pass and a saturation boost. The operations work on RGBA
// copies; the source frame is never modified.
package enhance

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Contrast stretch factors around the midpoint.
const (
	contrastMidpoint = 128
	contrastAbove    = 1.2
	contrastBelow    = 0.8
)

// saturationBoost is the default saturation factor applied by Apply.
const saturationBoost = 1.3

// ToRGBA returns img as *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	xdraw.Draw(out, b, img, b.Min, xdraw.Src)
	return out
}

// Contrast stretches channel values away from the midpoint: values above
// 128 are scaled up, values below are scaled down. Alpha is preserved.
func Contrast(img image.Image) *image.RGBA {
	src := ToRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for i := 0; i < len(src.Pix); i += 4 {
		out.Pix[i] = stretch(src.Pix[i])
		out.Pix[i+1] = stretch(src.Pix[i+1])
		out.Pix[i+2] = stretch(src.Pix[i+2])
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out
}

func stretch(v uint8) uint8 {
	f := float64(v)
	if f > contrastMidpoint {
		f *= contrastAbove
	} else {
		f *= contrastBelow
	}
	return clamp(f)
}

// Sharpen applies a 3x3 unsharp kernel. Border pixels are copied through.
func Sharpen(img image.Image) *image.RGBA {
	src := ToRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, src.Pix)

	// center 5, cross -1
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			for c := 0; c < 3; c++ {
				center := float64(src.Pix[src.PixOffset(x, y)+c])
				sum := 5*center -
					float64(src.Pix[src.PixOffset(x, y-1)+c]) -
					float64(src.Pix[src.PixOffset(x, y+1)+c]) -
					float64(src.Pix[src.PixOffset(x-1, y)+c]) -
					float64(src.Pix[src.PixOffset(x+1, y)+c])
				out.Pix[out.PixOffset(x, y)+c] = clamp(sum)
			}
		}
	}
	return out
}

// Saturate pushes each channel away from the pixel's luma by factor.
// factor 1 is a no-op; factor 0 yields grayscale.
func Saturate(img image.Image, factor float64) *image.RGBA {
	src := ToRGBA(img)
	b := src.Bounds()
	out := image.NewRGBA(b)
	for i := 0; i < len(src.Pix); i += 4 {
		r := float64(src.Pix[i])
		g := float64(src.Pix[i+1])
		bb := float64(src.Pix[i+2])
		gray := 0.299*r + 0.587*g + 0.114*bb
		out.Pix[i] = clamp(gray + (r-gray)*factor)
		out.Pix[i+1] = clamp(gray + (g-gray)*factor)
		out.Pix[i+2] = clamp(gray + (bb-gray)*factor)
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out
}

// Downscale resizes img so its width does not exceed maxWidth, preserving
// aspect ratio. Frames at or under the limit are returned as-is.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	out := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}

// Apply runs the full 1D preprocessing chain: contrast, sharpen, saturate.
func Apply(img image.Image) *image.RGBA {
	return Saturate(Sharpen(Contrast(img)), saturationBoost)
}

// Gray converts img to grayscale using the luma weights.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

func clamp(f float64) uint8 {
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f + 0.5)
}
