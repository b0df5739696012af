package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime: one binding of a Program to concrete images
// ---------------------------------------------------------------------------

// Runtime binds a Program to source and destination rasters and evaluates
// it pixel by pixel. A Runtime is owned by one job at a time and is not
// safe for concurrent use.
type Runtime struct {
	prog *Program
	env  Env

	sources     []Raster         // by image index
	dests       []WritableRaster // by image index
	firstSource int
	firstDest   int

	pixelSlots []int // variables reset before each evaluation

	outside    float64
	hasOutside bool
}

// Program returns the compiled program behind the runtime.
func (rt *Runtime) Program() *Program {
	return rt.prog
}

// SetOutsideValue makes out-of-bounds source reads return v instead of
// failing.
func (rt *Runtime) SetOutsideValue(v float64) {
	rt.outside = v
	rt.hasOutside = true
}

// SetMaxLoopIterations bounds the loop iterations of one evaluation. Zero
// means unbounded.
func (rt *Runtime) SetMaxLoopIterations(n int) {
	if n < 0 {
		n = 0
	}
	rt.env.maxIter = n
}

// SetSourceImage binds r to a name the script reads.
func (rt *Runtime) SetSourceImage(name string, r Raster) error {
	idx := rt.prog.ImageIndex(name)
	switch {
	case idx < 0:
		return bindingErrorf("unknown image %s", name)
	case rt.prog.Images[idx].Role&RoleSource == 0:
		return bindingErrorf("image %s is not a source", name)
	case r == nil:
		return bindingErrorf("nil raster for source image %s", name)
	}
	rt.sources[idx] = r
	if rt.firstSource < 0 {
		rt.firstSource = idx
	}
	rt.updateDimensions()
	return nil
}

// SetDestinationImage binds r to a name the script writes. The first
// destination bound fixes Width and Height; rebinding it recomputes them.
func (rt *Runtime) SetDestinationImage(name string, r WritableRaster) error {
	idx := rt.prog.ImageIndex(name)
	switch {
	case idx < 0:
		return bindingErrorf("unknown image %s", name)
	case rt.prog.Images[idx].Role&RoleDestination == 0:
		return bindingErrorf("image %s is not a destination", name)
	case r == nil:
		return bindingErrorf("nil raster for destination image %s", name)
	}
	rt.dests[idx] = r
	if rt.firstDest < 0 {
		rt.firstDest = idx
	}
	rt.updateDimensions()
	return nil
}

// updateDimensions derives Width and Height from the first bound
// destination, falling back to the first bound source.
func (rt *Runtime) updateDimensions() {
	var r Raster
	switch {
	case rt.firstDest >= 0:
		r = rt.dests[rt.firstDest]
	case rt.firstSource >= 0:
		r = rt.sources[rt.firstSource]
	default:
		return
	}
	b := r.Bounds()
	rt.env.Width, rt.env.Height = b.Dx(), b.Dy()
}

// Width returns the default raster width.
func (rt *Runtime) Width() int { return rt.env.Width }

// Height returns the default raster height.
func (rt *Runtime) Height() int { return rt.env.Height }

// Destinations returns destination names in binding order.
func (rt *Runtime) Destinations() []string {
	return rt.names(RoleDestination)
}

// Sources returns source names in binding order.
func (rt *Runtime) Sources() []string {
	return rt.names(RoleSource)
}

func (rt *Runtime) names(role ImageRole) []string {
	var out []string
	for _, img := range rt.prog.Images {
		if img.Role&role != 0 {
			out = append(out, img.Name)
		}
	}
	return out
}

// Destination returns the raster bound to a destination name, or nil.
func (rt *Runtime) Destination(name string) WritableRaster {
	if idx := rt.prog.ImageIndex(name); idx >= 0 {
		return rt.dests[idx]
	}
	return nil
}

// Source returns the raster bound to a source name, or nil.
func (rt *Runtime) Source(name string) Raster {
	if idx := rt.prog.ImageIndex(name); idx >= 0 {
		return rt.sources[idx]
	}
	return nil
}

// CheckBindings reports every image the program uses that has no raster
// bound for one of its roles.
func (rt *Runtime) CheckBindings() error {
	var errs []error
	for i, img := range rt.prog.Images {
		if img.Role&RoleSource != 0 && rt.sources[i] == nil {
			errs = append(errs, bindingErrorf("source image %s is not bound", img.Name))
		}
		if img.Role&RoleDestination != 0 && rt.dests[i] == nil {
			errs = append(errs, bindingErrorf("destination image %s is not bound", img.Name))
		}
	}
	return errors.Join(errs...)
}

// Init resets all variables and runs the init block once.
func (rt *Runtime) Init() error {
	env := &rt.env
	clear(env.Vars)
	env.X, env.Y, env.Band = 0, 0, 0
	env.iterations = 0
	if rt.prog.Init == nil {
		return nil
	}
	if err := rt.prog.Init.Eval(env); err != nil {
		return locate(err, 0, 0, 0)
	}
	return nil
}

// Evaluate runs the per-pixel body for one pixel and band. Per-pixel
// variables start from zero; init-block variables keep their values.
func (rt *Runtime) Evaluate(x, y, band int) error {
	env := &rt.env
	for _, slot := range rt.pixelSlots {
		env.Vars[slot] = 0
	}
	env.X, env.Y, env.Band = x, y, band
	env.iterations = 0
	if err := rt.prog.Body.Eval(env); err != nil {
		return locate(err, x, y, band)
	}
	return nil
}

// ReadFromImage reads a sample through the script's image rules: names
// with a source role read the source raster, destination-only names read
// the destination raster.
func (rt *Runtime) ReadFromImage(name string, x, y, band int) (float64, error) {
	idx := rt.prog.ImageIndex(name)
	if idx < 0 {
		return 0, &EvalError{Image: name, X: x, Y: y, Band: band, Err: bindingErrorf("unknown image %s", name)}
	}
	return rt.readSlot(idx, x, y, band)
}

// WriteToImage writes a sample to a destination. Writes outside the
// destination's bounds or bands are dropped.
func (rt *Runtime) WriteToImage(name string, x, y, band int, v float64) error {
	idx := rt.prog.ImageIndex(name)
	if idx < 0 {
		return &EvalError{Image: name, X: x, Y: y, Band: band, Err: bindingErrorf("unknown image %s", name)}
	}
	return rt.writeSlot(idx, x, y, band, v)
}

func (rt *Runtime) readSlot(idx, x, y, band int) (float64, error) {
	img := rt.prog.Images[idx]
	var r Raster
	if img.Role&RoleSource != 0 {
		if src := rt.sources[idx]; src != nil {
			r = src
		}
	} else if dst := rt.dests[idx]; dst != nil {
		r = dst
	}
	if r == nil {
		return 0, &EvalError{Image: img.Name, X: x, Y: y, Band: band,
			Err: bindingErrorf("image %s is not bound", img.Name)}
	}
	if !contains(r, x, y, band) {
		if rt.hasOutside {
			return rt.outside, nil
		}
		return 0, &EvalError{Image: img.Name, X: x, Y: y, Band: band,
			Err: bindingErrorf("sample outside image %s (%v, %d bands)", img.Name, r.Bounds(), r.Bands())}
	}
	return r.At(x, y, band), nil
}

func (rt *Runtime) writeSlot(idx, x, y, band int, v float64) error {
	img := rt.prog.Images[idx]
	if img.Role&RoleDestination == 0 {
		return &EvalError{Image: img.Name, X: x, Y: y, Band: band,
			Err: bindingErrorf("image %s is not a destination", img.Name)}
	}
	dst := rt.dests[idx]
	if dst == nil {
		return &EvalError{Image: img.Name, X: x, Y: y, Band: band,
			Err: bindingErrorf("image %s is not bound", img.Name)}
	}
	if contains(dst, x, y, band) {
		dst.Set(x, y, band, v)
	}
	return nil
}

// locate attaches the pixel to an error that does not carry one.
func locate(err error, x, y, band int) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		return err
	}
	return &EvalError{X: x, Y: y, Band: band, Err: err}
}

func (rt *Runtime) String() string {
	return fmt.Sprintf("Runtime(%d images, %dx%d)", len(rt.prog.Images), rt.env.Width, rt.env.Height)
}
