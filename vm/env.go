package vm

import (
	"errors"
	"fmt"
)

// Env is the mutable state one evaluation runs against: the current
// pixel, the raster dimensions and the variable slots.
type Env struct {
	X, Y, Band    int
	Width, Height int
	Vars          []float64

	rt         *Runtime
	machine    Machine
	iterations int
	maxIter    int
}

// ReadImage reads image idx at the current pixel and band.
func (e *Env) ReadImage(idx int) (float64, error) {
	return e.rt.readSlot(idx, e.X, e.Y, e.Band)
}

// WriteImage writes image idx at the current pixel and band.
func (e *Env) WriteImage(idx int, v float64) error {
	return e.rt.writeSlot(idx, e.X, e.Y, e.Band, v)
}

// Tick counts one loop iteration and faults once the runtime's limit is
// exceeded. A limit of zero disables the guard.
func (e *Env) Tick() error {
	e.iterations++
	if e.maxIter > 0 && e.iterations > e.maxIter {
		return evalErrorf("loop exceeded %d iterations", e.maxIter)
	}
	return nil
}

// Call invokes a registry function. Errors it returns are numeric faults.
func (e *Env) Call(fn *Func, args []float64) (float64, error) {
	v, err := fn.Fn(args)
	if err != nil {
		if errors.Is(err, ErrEvaluation) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrEvaluation, fn.Name, err)
	}
	return v, nil
}
