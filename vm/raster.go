package vm

import "image"

// ---------------------------------------------------------------------------
// Raster model
// ---------------------------------------------------------------------------

// Raster is a read-only multi-band image of float64 samples.
type Raster interface {
	Bounds() image.Rectangle
	Bands() int
	At(x, y, band int) float64
}

// WritableRaster is a raster that can be assigned to.
type WritableRaster interface {
	Raster
	Set(x, y, band int, v float64)
}

// Tiled is implemented by rasters with a preferred tile partition. The
// driver sweeps destinations tile by tile using it.
type Tiled interface {
	TileSize() (w, h int)
}

// ImageRole is a bitmask of the ways a script may use an image name.
type ImageRole uint8

const (
	RoleSource ImageRole = 1 << iota
	RoleDestination
)

func (r ImageRole) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	case RoleSource | RoleDestination:
		return "source+destination"
	}
	return "none"
}

// ImageSlot describes one image name of a compiled program. Its index in
// Program.Images is the operand of OpReadImage and OpWriteImage.
type ImageSlot struct {
	Name string
	Role ImageRole
}

// contains reports whether (x, y, band) addresses a sample of r.
func contains(r Raster, x, y, band int) bool {
	return image.Pt(x, y).In(r.Bounds()) && band >= 0 && band < r.Bands()
}
