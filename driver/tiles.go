package driver

import (
	"image"

	"github.com/chazu/rastal/vm"
)

// TileGrid partitions a raster's bounds into tiles of at most TileW x
// TileH pixels. Edge tiles are smaller when the bounds are not evenly
// divisible. Tiles are kept in row-major order.
type TileGrid struct {
	Bounds       image.Rectangle
	TileW, TileH int
	tilesX       int
	tilesY       int
}

// NewTileGrid creates the grid covering bounds. Non-positive tile sizes
// fall back to the raster defaults.
func NewTileGrid(bounds image.Rectangle, tileW, tileH int) *TileGrid {
	if tileW <= 0 {
		tileW = vm.DefaultTileWidth
	}
	if tileH <= 0 {
		tileH = vm.DefaultTileHeight
	}
	g := &TileGrid{Bounds: bounds.Canon(), TileW: tileW, TileH: tileH}
	if !g.Bounds.Empty() {
		g.tilesX = (g.Bounds.Dx() + tileW - 1) / tileW
		g.tilesY = (g.Bounds.Dy() + tileH - 1) / tileH
	}
	return g
}

// Len returns the number of tiles.
func (g *TileGrid) Len() int {
	return g.tilesX * g.tilesY
}

// Tile returns the rectangle of tile i, clipped to the grid bounds.
func (g *TileGrid) Tile(i int) image.Rectangle {
	tx, ty := i%g.tilesX, i/g.tilesX
	origin := g.Bounds.Min.Add(image.Pt(tx*g.TileW, ty*g.TileH))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(g.TileW, g.TileH))}.Intersect(g.Bounds)
}

// Tiles returns every tile in row-major order.
func (g *TileGrid) Tiles() []image.Rectangle {
	out := make([]image.Rectangle, g.Len())
	for i := range out {
		out[i] = g.Tile(i)
	}
	return out
}

// coverage is the area and band count an earlier pass already evaluated.
type coverage struct {
	rect  image.Rectangle
	bands int
}

// pass is the sweep over one destination image.
type pass struct {
	name    string
	bands   int
	grid    *TileGrid
	covered []coverage
}

// planPasses builds one pass per destination in binding order. A pixel
// that an earlier destination already covers only runs the bands that
// destination did not have, so every (x, y, band) of every destination
// is evaluated exactly once.
func planPasses(rt *vm.Runtime, tileW, tileH int) []*pass {
	var passes []*pass
	var covered []coverage
	for _, name := range rt.Destinations() {
		dst := rt.Destination(name)
		if dst == nil {
			continue
		}
		tw, th := tileW, tileH
		if tw <= 0 || th <= 0 {
			if t, ok := dst.(vm.Tiled); ok {
				tw, th = t.TileSize()
			}
		}
		passes = append(passes, &pass{
			name:    name,
			bands:   dst.Bands(),
			grid:    NewTileGrid(dst.Bounds(), tw, th),
			covered: append([]coverage(nil), covered...),
		})
		covered = append(covered, coverage{rect: dst.Bounds(), bands: dst.Bands()})
	}
	return passes
}

// firstBand returns the first band at pt that no earlier pass evaluated.
func (p *pass) firstBand(pt image.Point) int {
	first := 0
	for _, c := range p.covered {
		if c.bands > first && pt.In(c.rect) {
			first = c.bands
		}
	}
	return first
}

// pixels counts the pixels this pass will evaluate.
func (p *pass) pixels() int {
	b := p.grid.Bounds
	if len(p.covered) == 0 {
		return b.Dx() * b.Dy()
	}
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if p.firstBand(image.Pt(x, y)) < p.bands {
				n++
			}
		}
	}
	return n
}

// run evaluates one tile row-major, every remaining band per pixel, and
// returns the number of pixels it completed.
func (p *pass) run(rt *vm.Runtime, tile image.Rectangle) (int, error) {
	n := 0
	for y := tile.Min.Y; y < tile.Max.Y; y++ {
		for x := tile.Min.X; x < tile.Max.X; x++ {
			first := 0
			if len(p.covered) > 0 {
				if first = p.firstBand(image.Pt(x, y)); first >= p.bands {
					continue
				}
			}
			for band := first; band < p.bands; band++ {
				if err := rt.Evaluate(x, y, band); err != nil {
					return n, err
				}
			}
			n++
		}
	}
	return n, nil
}
