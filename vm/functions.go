package vm

import (
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Function registry
// ---------------------------------------------------------------------------

// Func is a numeric function callable from scripts. Fn must not retain
// args: the machine passes a window of its operand stack.
type Func struct {
	Name  string
	Arity int
	Fn    func(args []float64) (float64, error)
}

// Registry maps function names to implementations. The compiler resolves
// calls against one registry; there is no global registration.
type Registry struct {
	funcs map[string]*Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]*Func)}
}

// Register adds a function. Names must be unique within the registry.
func (r *Registry) Register(name string, arity int, fn func(args []float64) (float64, error)) error {
	switch {
	case name == "":
		return fmt.Errorf("function with empty name")
	case arity < 0:
		return fmt.Errorf("function %s: negative arity %d", name, arity)
	case fn == nil:
		return fmt.Errorf("function %s: nil implementation", name)
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("function %s already registered", name)
	}
	r.funcs[name] = &Func{Name: name, Arity: arity, Fn: fn}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, arity int, fn func(args []float64) (float64, error)) {
	if err := r.Register(name, arity, fn); err != nil {
		panic(err)
	}
}

// Lookup finds a function by name.
func (r *Registry) Lookup(name string) (*Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a registry with the same functions that can be extended
// independently.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for name, fn := range r.funcs {
		out.funcs[name] = fn
	}
	return out
}

func unary(f func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) { return f(args[0]), nil }
}

func binary(f func(a, b float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) { return f(args[0], args[1]), nil }
}

// DefaultRegistry returns a new registry holding the standard math
// functions.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for name, f := range map[string]func(float64) float64{
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"exp":   math.Exp,
		"log":   math.Log,
		"log10": math.Log10,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": math.Round,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"sign":  sign,
		"isnan": func(v float64) float64 { return Bool(math.IsNaN(v)) },
		"isinf": func(v float64) float64 { return Bool(math.IsInf(v, 0)) },
	} {
		r.MustRegister(name, 1, unary(f))
	}

	for name, f := range map[string]func(a, b float64) float64{
		"atan2": math.Atan2,
		"min":   math.Min,
		"max":   math.Max,
		"pow":   math.Pow,
		"hypot": math.Hypot,
	} {
		r.MustRegister(name, 2, binary(f))
	}

	// con(cond, a, b) selects a when cond is truthy, else b.
	r.MustRegister("con", 3, func(args []float64) (float64, error) {
		if Truthy(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	})
	r.MustRegister("clamp", 3, func(args []float64) (float64, error) {
		return math.Max(args[1], math.Min(args[2], args[0])), nil
	})

	return r
}

func sign(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Value semantics shared by every evaluation strategy
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true: non-zero and not NaN.
func Truthy(v float64) bool {
	return v != 0 && !math.IsNaN(v)
}

// Bool converts a Go boolean to 0 or 1.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NotEqual is != where any NaN operand yields false.
func NotEqual(a, b float64) bool {
	return a != b && !math.IsNaN(a) && !math.IsNaN(b)
}
