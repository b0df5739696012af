package driver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/vm"
)

// State is the lifecycle position of a job.
type State int

const (
	StateCreated State = iota
	StateCompiled
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCompiled:
		return "compiled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrJobStarted is returned when a job is handed to a driver twice.
var ErrJobStarted = errors.New("job already started")

// Images names the rasters a script job binds.
type Images struct {
	Sources      map[string]vm.Raster
	Destinations map[string]vm.WritableRaster
}

// RuntimeOptions configure the runtime a script job builds.
type RuntimeOptions struct {
	Outside           *float64 // value for out-of-bounds source reads
	MaxLoopIterations int
}

// Job is one run of a runtime over its destinations.
type Job struct {
	ID uuid.UUID

	mu       sync.Mutex
	state    State
	progress float64
	err      error
	rt       *vm.Runtime
	claimed  bool

	// set for jobs created from source
	source   string
	bindings compiler.Bindings
	images   Images
	rtOpts   RuntimeOptions
	compile  []compiler.Option
	result   *compiler.Result
}

// NewJob creates a job for an already bound runtime.
func NewJob(rt *vm.Runtime) *Job {
	return &Job{ID: uuid.New(), state: StateCompiled, rt: rt}
}

// NewScriptJob creates a job that compiles source against bindings and
// binds images when it is submitted. A compile failure fails the job with
// the *compiler.CompileError as its cause.
func NewScriptJob(source string, bindings compiler.Bindings, images Images, rtOpts RuntimeOptions, opts ...compiler.Option) *Job {
	return &Job{
		ID:       uuid.New(),
		state:    StateCreated,
		source:   source,
		bindings: bindings,
		images:   images,
		rtOpts:   rtOpts,
		compile:  opts,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the last reported fraction.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Err returns the failure cause of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Runtime returns the job's runtime; nil until a script job compiles.
func (j *Job) Runtime() *vm.Runtime {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rt
}

// CompileResult returns the compiler output of a script job.
func (j *Job) CompileResult() *compiler.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// claim marks the job as taken by a driver.
func (j *Job) claim() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.claimed {
		return fmt.Errorf("%w: job %s is %s", ErrJobStarted, j.ID, j.state)
	}
	j.claimed = true
	return nil
}

// prepare compiles and binds a script job. Runtime jobs pass through.
func (j *Job) prepare() error {
	j.mu.Lock()
	state := j.state
	j.mu.Unlock()
	if state == StateCompiled {
		return nil
	}

	result, err := compiler.Compile(j.source, j.bindings, j.compile...)
	j.mu.Lock()
	j.result = result
	j.mu.Unlock()
	if err != nil {
		return err
	}

	rt := result.Program.NewRuntime()
	if j.rtOpts.Outside != nil {
		rt.SetOutsideValue(*j.rtOpts.Outside)
	}
	rt.SetMaxLoopIterations(j.rtOpts.MaxLoopIterations)
	for _, b := range j.bindings {
		if b.Role&compiler.Source != 0 {
			if r, ok := j.images.Sources[b.Name]; ok {
				if err := rt.SetSourceImage(b.Name, r); err != nil {
					return err
				}
			}
		}
		if b.Role&compiler.Destination != 0 {
			if r, ok := j.images.Destinations[b.Name]; ok {
				if err := rt.SetDestinationImage(b.Name, r); err != nil {
					return err
				}
			}
		}
	}

	j.mu.Lock()
	j.rt = rt
	j.state = StateCompiled
	j.mu.Unlock()
	return nil
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) setProgress(f float64) {
	j.mu.Lock()
	j.progress = f
	j.mu.Unlock()
}

// finish records the terminal state.
func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	if err != nil {
		j.state = StateFailed
		return
	}
	j.state = StateCompleted
	j.progress = 1
}
