// Package driver runs compiled scripts over their destination images,
// tile by tile, and reports job progress to listeners.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rastal.driver")

// ErrCancelled is the failure cause of a job whose context ended. It
// wraps the context's error.
var ErrCancelled = errors.New("job cancelled")

// Option configures a Driver.
type Option func(*Driver)

// WithTileSize forces a tile size for every destination, overriding the
// partition a raster prefers.
func WithTileSize(w, h int) Option {
	return func(d *Driver) { d.tileW, d.tileH = w, h }
}

// WithDispatcher shares a dispatcher between drivers.
func WithDispatcher(disp *Dispatcher) Option {
	return func(d *Driver) { d.dispatcher = disp }
}

// Driver executes jobs. Synchronous runs use Run; Submit starts a job on
// its own goroutine.
type Driver struct {
	dispatcher   *Dispatcher
	tileW, tileH int
	wg           sync.WaitGroup
}

// New creates a driver with its own dispatcher unless one is given.
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	if d.dispatcher == nil {
		d.dispatcher = NewDispatcher()
	}
	return d
}

// Dispatcher returns the listener registry jobs report to.
func (d *Driver) Dispatcher() *Dispatcher {
	return d.dispatcher
}

// Run executes job on the calling goroutine and returns its failure
// cause. It returns only after every event of the job was delivered.
func (d *Driver) Run(ctx context.Context, job *Job) error {
	if err := job.claim(); err != nil {
		return err
	}
	events := newStream(job.ID, d.dispatcher.snapshot())
	err := d.execute(ctx, job, events)
	events.close()
	return err
}

// Submit starts job on a new goroutine and returns its ID. The outcome
// is reported only through listeners.
func (d *Driver) Submit(ctx context.Context, job *Job) (uuid.UUID, error) {
	if err := job.claim(); err != nil {
		return job.ID, err
	}
	events := newStream(job.ID, d.dispatcher.snapshot())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(ctx, job, events)
		events.close()
	}()
	return job.ID, nil
}

// Wait blocks until every submitted job has finished and delivered its
// events.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// execute runs a claimed job and emits its terminal event.
func (d *Driver) execute(ctx context.Context, job *Job, events *stream) error {
	err := d.process(ctx, job, events)
	job.finish(err)
	if err != nil {
		log.Errorf("job %s failed: %v", job.ID, err)
		events.send(Event{Kind: EventFailure, Cause: err})
		return err
	}
	log.Infof("job %s completed", job.ID)
	events.send(Event{Kind: EventCompletion})
	return nil
}

func (d *Driver) process(ctx context.Context, job *Job, events *stream) error {
	if err := job.prepare(); err != nil {
		return err
	}
	job.setState(StateRunning)
	rt := job.Runtime()
	log.Infof("job %s running: %s", job.ID, rt)

	if err := rt.CheckBindings(); err != nil {
		return err
	}
	if err := rt.Init(); err != nil {
		return err
	}

	passes := planPasses(rt, d.tileW, d.tileH)
	total := 0
	for _, p := range passes {
		total += p.pixels()
	}

	events.progress(0)
	done := 0
	for _, p := range passes {
		log.Debugf("job %s: destination %s, %d tiles", job.ID, p.name, p.grid.Len())
		for i := 0; i < p.grid.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			n, err := p.run(rt, p.grid.Tile(i))
			done += n
			if err != nil {
				return err
			}
			f := 1.0
			if total > 0 {
				f = float64(done) / float64(total)
			}
			job.setProgress(f)
			events.progress(f)
		}
	}
	if total == 0 {
		events.progress(1)
	}
	return nil
}
