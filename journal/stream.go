package journal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/rastal/driver"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// streamRecord is the wire form of one event: a CBOR map per event,
// concatenated.
type streamRecord struct {
	JobID    []byte  `cbor:"1,keyasint"`
	Kind     int     `cbor:"2,keyasint"`
	Fraction float64 `cbor:"3,keyasint,omitempty"`
	Cause    string  `cbor:"4,keyasint,omitempty"`
	At       int64   `cbor:"5,keyasint"`
}

// StreamWriter is a driver.Listener that appends events to w. The first
// write error stops the stream and is reported by Err.
type StreamWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	err error
	now func() time.Time
}

// NewStreamWriter creates a writer appending to w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{enc: cborEncMode.NewEncoder(w), now: time.Now}
}

// Write appends one event.
func (s *StreamWriter) Write(e driver.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	rec := streamRecord{
		JobID:    e.JobID[:],
		Kind:     int(e.Kind),
		Fraction: e.Fraction,
		At:       s.now().UnixNano(),
	}
	if e.Cause != nil {
		rec.Cause = e.Cause.Error()
	}
	if err := s.enc.Encode(&rec); err != nil {
		s.err = fmt.Errorf("journal: write event: %w", err)
	}
	return s.err
}

// Err returns the first write error.
func (s *StreamWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StreamWriter) OnProgress(id uuid.UUID, fraction float64) {
	s.Write(driver.Event{JobID: id, Kind: driver.EventProgress, Fraction: fraction})
}

func (s *StreamWriter) OnCompletion(id uuid.UUID) {
	s.Write(driver.Event{JobID: id, Kind: driver.EventCompletion})
}

func (s *StreamWriter) OnFailure(id uuid.UUID, cause error) {
	s.Write(driver.Event{JobID: id, Kind: driver.EventFailure, Cause: cause})
}

// StreamReader decodes an event stream.
type StreamReader struct {
	dec *cbor.Decoder
	seq int64
}

// NewStreamReader creates a reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the stream.
func (s *StreamReader) Next() (Entry, error) {
	var rec streamRecord
	if err := s.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("journal: read event %d: %w", s.seq+1, err)
	}
	id, err := uuid.FromBytes(rec.JobID)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: read event %d: %w", s.seq+1, err)
	}
	s.seq++
	return Entry{
		Seq:      s.seq,
		JobID:    id,
		Kind:     driver.EventKind(rec.Kind),
		Fraction: rec.Fraction,
		Cause:    rec.Cause,
		At:       time.Unix(0, rec.At),
	}, nil
}

// ReadStream decodes every event of r.
func ReadStream(r io.Reader) ([]Entry, error) {
	sr := NewStreamReader(r)
	var out []Entry
	for {
		e, err := sr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
