// Package rastal compiles raster-algebra scripts and runs them over
// images. It ties the compiler, the runtime and the execution driver
// together for callers that want a single call; the subpackages remain
// available for finer control.
package rastal

import (
	"context"
	"sort"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/driver"
	"github.com/chazu/rastal/vm"
)

type config struct {
	compile      []compiler.Option
	tileW, tileH int
	runtime      driver.RuntimeOptions
	listeners    []driver.Listener
}

// Option configures Run, RunProject and Check.
type Option func(*config)

// WithStrategy selects the compiler's lowering strategy.
func WithStrategy(s compiler.Strategy) Option {
	return func(c *config) { c.compile = append(c.compile, compiler.WithStrategy(s)) }
}

// WithRegistry resolves function calls against r.
func WithRegistry(r *vm.Registry) Option {
	return func(c *config) { c.compile = append(c.compile, compiler.WithRegistry(r)) }
}

// WithTileSize overrides the tile partition of every destination.
func WithTileSize(w, h int) Option {
	return func(c *config) { c.tileW, c.tileH = w, h }
}

// WithOutsideValue makes out-of-bounds source reads yield v.
func WithOutsideValue(v float64) Option {
	return func(c *config) { c.runtime.Outside = &v }
}

// WithMaxLoopIterations bounds every while loop of one evaluation.
func WithMaxLoopIterations(n int) Option {
	return func(c *config) { c.runtime.MaxLoopIterations = n }
}

// WithListener receives the job's events.
func WithListener(l driver.Listener) Option {
	return func(c *config) { c.listeners = append(c.listeners, l) }
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) driver() *driver.Driver {
	disp := driver.NewDispatcher()
	for _, l := range c.listeners {
		disp.Register(l)
	}
	return driver.New(driver.WithDispatcher(disp), driver.WithTileSize(c.tileW, c.tileH))
}

// Bind builds a binding table for the given images. Sources come first,
// then destinations, each sorted by name; a name present in both maps is
// bound both ways at its source position.
func Bind(sources map[string]vm.Raster, destinations map[string]vm.WritableRaster) compiler.Bindings {
	var bindings compiler.Bindings
	for _, name := range sortedNames(sources) {
		role := compiler.Source
		if _, ok := destinations[name]; ok {
			role |= compiler.Destination
		}
		bindings = append(bindings, compiler.Binding{Name: name, Role: role})
	}
	for _, name := range sortedNames(destinations) {
		if _, ok := sources[name]; !ok {
			bindings = append(bindings, compiler.Binding{Name: name, Role: compiler.Destination})
		}
	}
	return bindings
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check returns the diagnostics of script against bindings.
func Check(script string, bindings compiler.Bindings, opts ...Option) compiler.Problems {
	return compiler.Check(script, bindings, newConfig(opts).compile...)
}

// Run compiles script against the given images and evaluates it over
// every destination on the calling goroutine. Results are written into
// destinations. The returned job is never nil; its state and compile
// result stay available when Run fails.
func Run(ctx context.Context, script string, sources map[string]vm.Raster, destinations map[string]vm.WritableRaster, opts ...Option) (*driver.Job, error) {
	c := newConfig(opts)
	job := driver.NewScriptJob(script, Bind(sources, destinations),
		driver.Images{Sources: sources, Destinations: destinations},
		c.runtime, c.compile...)
	return job, c.driver().Run(ctx, job)
}
