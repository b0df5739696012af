package vm

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// ---------------------------------------------------------------------------
// Conversion between Go images and buffers
// ---------------------------------------------------------------------------

// Samples taken from Go images are 16-bit channel values in [0, 65535].

// FromImage converts img to a buffer. Gray images give one band; all
// others give four (red, green, blue, alpha).
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	if isGray(img) {
		gray := image.NewGray16(bounds)
		draw.Copy(gray, bounds.Min, img, bounds, draw.Src, nil)
		buf := NewBuffer(bounds, 1)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				buf.Set(x, y, 0, float64(gray.Gray16At(x, y).Y))
			}
		}
		return buf
	}

	rgba := image.NewRGBA64(bounds)
	draw.Copy(rgba, bounds.Min, img, bounds, draw.Src, nil)
	buf := NewBuffer(bounds, 4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := rgba.RGBA64At(x, y)
			buf.Set(x, y, 0, float64(c.R))
			buf.Set(x, y, 1, float64(c.G))
			buf.Set(x, y, 2, float64(c.B))
			buf.Set(x, y, 3, float64(c.A))
		}
	}
	return buf
}

// FromImageScaled converts img and resamples it to w x h with bilinear
// interpolation.
func FromImageScaled(img image.Image, w, h int) *Buffer {
	dst := image.NewRGBA64(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	if isGray(img) {
		gray := image.NewGray16(dst.Bounds())
		draw.Copy(gray, image.Point{}, dst, dst.Bounds(), draw.Src, nil)
		return FromImage(gray)
	}
	return FromImage(dst)
}

func isGray(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

// Gray16 exports one band, clamping samples to [0, 65535]. NaN becomes 0.
func (b *Buffer) Gray16(band int) *image.Gray16 {
	out := image.NewGray16(b.rect)
	for y := b.rect.Min.Y; y < b.rect.Max.Y; y++ {
		for x := b.rect.Min.X; x < b.rect.Max.X; x++ {
			out.SetGray16(x, y, color.Gray16{Y: clamp16(b.At(x, y, band))})
		}
	}
	return out
}

// Image exports the buffer: one band as Gray16, three or more as RGBA64
// (alpha from band 3 when present, else opaque).
func (b *Buffer) Image() image.Image {
	if b.bands < 3 {
		return b.Gray16(0)
	}
	out := image.NewRGBA64(b.rect)
	for y := b.rect.Min.Y; y < b.rect.Max.Y; y++ {
		for x := b.rect.Min.X; x < b.rect.Max.X; x++ {
			a := uint16(0xffff)
			if b.bands > 3 {
				a = clamp16(b.At(x, y, 3))
			}
			out.SetRGBA64(x, y, color.RGBA64{
				R: clamp16(b.At(x, y, 0)),
				G: clamp16(b.At(x, y, 1)),
				B: clamp16(b.At(x, y, 2)),
				A: a,
			})
		}
	}
	return out
}

func clamp16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 0xffff:
		return 0xffff
	}
	return uint16(math.Round(v))
}
