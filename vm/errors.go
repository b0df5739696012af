package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

var (
	// ErrEvaluation marks numeric faults and loop-limit faults raised while
	// evaluating a pixel.
	ErrEvaluation = errors.New("runtime evaluation error")

	// ErrImageBinding marks reads and writes that reach an unbound or
	// unknown image, or coordinates outside a source image.
	ErrImageBinding = errors.New("image binding error")
)

// EvalError locates a runtime failure. Image is empty when the failure
// is not tied to one image.
type EvalError struct {
	Image string
	X, Y  int
	Band  int
	Err   error
}

func (e *EvalError) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("evaluating %s at (%d, %d) band %d: %v", e.Image, e.X, e.Y, e.Band, e.Err)
	}
	return fmt.Sprintf("evaluating (%d, %d) band %d: %v", e.X, e.Y, e.Band, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// evalErrorf builds an error wrapping ErrEvaluation.
func evalErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrEvaluation, fmt.Sprintf(format, args...))
}

// bindingErrorf builds an error wrapping ErrImageBinding.
func bindingErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrImageBinding, fmt.Sprintf(format, args...))
}
