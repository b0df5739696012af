package vm

import (
	"fmt"
	"image"
	"math"
)

// Default tile partition, matching a 64x64 tile grid.
const (
	DefaultTileWidth  = 64
	DefaultTileHeight = 64
)

// Buffer is an in-memory WritableRaster holding float64 samples in
// band-interleaved row-major order.
type Buffer struct {
	rect  image.Rectangle
	bands int
	pix   []float64

	tileW, tileH int
}

// NewBuffer allocates a zeroed buffer covering r.
func NewBuffer(r image.Rectangle, bands int) *Buffer {
	if bands < 1 {
		panic(fmt.Sprintf("vm: buffer needs at least one band, got %d", bands))
	}
	r = r.Canon()
	return &Buffer{
		rect:  r,
		bands: bands,
		pix:   make([]float64, r.Dx()*r.Dy()*bands),
		tileW: DefaultTileWidth,
		tileH: DefaultTileHeight,
	}
}

// NewBufferSize allocates a zeroed w x h buffer anchored at the origin.
func NewBufferSize(w, h, bands int) *Buffer {
	return NewBuffer(image.Rect(0, 0, w, h), bands)
}

// NewBufferFrom copies every sample of r into a new buffer.
func NewBufferFrom(r Raster) *Buffer {
	b := NewBuffer(r.Bounds(), r.Bands())
	for y := b.rect.Min.Y; y < b.rect.Max.Y; y++ {
		for x := b.rect.Min.X; x < b.rect.Max.X; x++ {
			for band := 0; band < b.bands; band++ {
				b.pix[b.offset(x, y, band)] = r.At(x, y, band)
			}
		}
	}
	return b
}

func (b *Buffer) offset(x, y, band int) int {
	return ((y-b.rect.Min.Y)*b.rect.Dx()+(x-b.rect.Min.X))*b.bands + band
}

// Bounds implements Raster.
func (b *Buffer) Bounds() image.Rectangle { return b.rect }

// Bands implements Raster.
func (b *Buffer) Bands() int { return b.bands }

// At implements Raster. Samples outside the buffer read as NaN.
func (b *Buffer) At(x, y, band int) float64 {
	if !contains(b, x, y, band) {
		return math.NaN()
	}
	return b.pix[b.offset(x, y, band)]
}

// Set implements WritableRaster. Samples outside the buffer are dropped.
func (b *Buffer) Set(x, y, band int, v float64) {
	if !contains(b, x, y, band) {
		return
	}
	b.pix[b.offset(x, y, band)] = v
}

// TileSize implements Tiled.
func (b *Buffer) TileSize() (w, h int) { return b.tileW, b.tileH }

// SetTileSize changes the preferred tile partition. Non-positive sizes
// fall back to the defaults.
func (b *Buffer) SetTileSize(w, h int) {
	if w <= 0 {
		w = DefaultTileWidth
	}
	if h <= 0 {
		h = DefaultTileHeight
	}
	b.tileW, b.tileH = w, h
}

// Fill sets every sample of band to v.
func (b *Buffer) Fill(band int, v float64) {
	for i := band; i < len(b.pix); i += b.bands {
		b.pix[i] = v
	}
}

// Band returns a row-major copy of one band.
func (b *Buffer) Band(band int) []float64 {
	out := make([]float64, 0, b.rect.Dx()*b.rect.Dy())
	for i := band; i < len(b.pix); i += b.bands {
		out = append(out, b.pix[i])
	}
	return out
}

// Pix exposes the interleaved sample slice.
func (b *Buffer) Pix() []float64 { return b.pix }
