package driver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// EventKind distinguishes job notifications.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompletion
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompletion:
		return "completion"
	case EventFailure:
		return "failure"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Terminal reports whether the event ends its job.
func (k EventKind) Terminal() bool {
	return k == EventCompletion || k == EventFailure
}

// Event is one notification about a job. Fraction is set for progress
// events, Cause for failures.
type Event struct {
	JobID    uuid.UUID
	Kind     EventKind
	Fraction float64
	Cause    error
}

// Listener receives job notifications. Calls for one job arrive in order
// on a single goroutine; calls for different jobs may be concurrent.
type Listener interface {
	OnProgress(id uuid.UUID, fraction float64)
	OnCompletion(id uuid.UUID)
	OnFailure(id uuid.UUID, cause error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Progress   func(id uuid.UUID, fraction float64)
	Completion func(id uuid.UUID)
	Failure    func(id uuid.UUID, cause error)
}

func (f ListenerFuncs) OnProgress(id uuid.UUID, fraction float64) {
	if f.Progress != nil {
		f.Progress(id, fraction)
	}
}

func (f ListenerFuncs) OnCompletion(id uuid.UUID) {
	if f.Completion != nil {
		f.Completion(id)
	}
}

func (f ListenerFuncs) OnFailure(id uuid.UUID, cause error) {
	if f.Failure != nil {
		f.Failure(id, cause)
	}
}

// Notify dispatches e to the matching Listener method.
func Notify(l Listener, e Event) {
	switch e.Kind {
	case EventProgress:
		l.OnProgress(e.JobID, e.Fraction)
	case EventCompletion:
		l.OnCompletion(e.JobID)
	case EventFailure:
		l.OnFailure(e.JobID, e.Cause)
	}
}

// Recorder is a Listener that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) OnProgress(id uuid.UUID, fraction float64) {
	r.record(Event{JobID: id, Kind: EventProgress, Fraction: fraction})
}

func (r *Recorder) OnCompletion(id uuid.UUID) {
	r.record(Event{JobID: id, Kind: EventCompletion})
}

func (r *Recorder) OnFailure(id uuid.UUID, cause error) {
	r.record(Event{JobID: id, Kind: EventFailure, Cause: cause})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ForJob returns the events of one job in delivery order.
func (r *Recorder) ForJob(id uuid.UUID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.JobID == id {
			out = append(out, e)
		}
	}
	return out
}

// stream delivers the events of one job to a fixed listener set through
// a FIFO channel drained by its own goroutine.
type stream struct {
	job       uuid.UUID
	listeners []Listener
	events    chan Event
	done      chan struct{}
}

func newStream(job uuid.UUID, listeners []Listener) *stream {
	s := &stream{
		job:       job,
		listeners: listeners,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *stream) loop() {
	defer close(s.done)
	for e := range s.events {
		for _, l := range s.listeners {
			s.deliver(l, e)
		}
	}
}

// deliver calls one listener, recovering from panics so a faulty
// listener cannot take down the job or starve the others.
func (s *stream) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job %s: listener panicked on %s event: %v", s.job, e.Kind, r)
		}
	}()
	Notify(l, e)
}

func (s *stream) send(e Event) {
	e.JobID = s.job
	s.events <- e
}

func (s *stream) progress(f float64) {
	s.send(Event{Kind: EventProgress, Fraction: f})
}

// close ends the stream and waits until every event has been delivered.
func (s *stream) close() {
	close(s.events)
	<-s.done
}
