// Package journal keeps a record of job events. Journal stores them in
// SQLite; StreamWriter appends them to a CBOR stream.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/rastal/driver"
)

var log = commonlog.GetLogger("rastal.journal")

// ErrJobNotFound indicates the journal holds no events for a job.
var ErrJobNotFound = errors.New("job not found")

// Entry is one recorded event.
type Entry struct {
	Seq      int64
	JobID    uuid.UUID
	Kind     driver.EventKind
	Fraction float64
	Cause    string
	At       time.Time
}

// Summary is the latest known state of a job.
type Summary struct {
	JobID    uuid.UUID
	State    driver.State
	Progress float64
	Cause    string
	Events   int
	Updated  time.Time
}

// Journal is a driver.Listener that persists every event it receives.
type Journal struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens or creates the journal database at path. Use ":memory:"
// for a private in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS job_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		fraction REAL NOT NULL DEFAULT 0,
		cause TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS job_events_job ON job_events (job_id, seq)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record appends one event.
func (j *Journal) Record(e driver.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var cause string
	if e.Cause != nil {
		cause = e.Cause.Error()
	}
	_, err := j.db.Exec(
		"INSERT INTO job_events (job_id, kind, fraction, cause, at) VALUES (?, ?, ?, ?, ?)",
		e.JobID.String(), e.Kind.String(), e.Fraction, cause, j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

func (j *Journal) record(e driver.Event) {
	if err := j.Record(e); err != nil {
		log.Errorf("job %s: %v", e.JobID, err)
	}
}

// OnProgress implements driver.Listener.
func (j *Journal) OnProgress(id uuid.UUID, fraction float64) {
	j.record(driver.Event{JobID: id, Kind: driver.EventProgress, Fraction: fraction})
}

// OnCompletion implements driver.Listener.
func (j *Journal) OnCompletion(id uuid.UUID) {
	j.record(driver.Event{JobID: id, Kind: driver.EventCompletion, Fraction: 1})
}

// OnFailure implements driver.Listener.
func (j *Journal) OnFailure(id uuid.UUID, cause error) {
	j.record(driver.Event{JobID: id, Kind: driver.EventFailure, Cause: cause})
}

// Events returns the events of one job in recording order.
func (j *Journal) Events(id uuid.UUID) ([]Entry, error) {
	rows, err := j.db.Query(
		"SELECT seq, job_id, kind, fraction, cause, at FROM job_events WHERE job_id = ? ORDER BY seq",
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Job summarizes one job from its events.
func (j *Journal) Job(id uuid.UUID) (Summary, error) {
	events, err := j.Events(id)
	if err != nil {
		return Summary{}, err
	}
	if len(events) == 0 {
		return Summary{}, ErrJobNotFound
	}
	return summarize(events), nil
}

// Jobs summarizes every job in the order they were first seen.
func (j *Journal) Jobs() ([]Summary, error) {
	rows, err := j.db.Query("SELECT seq, job_id, kind, fraction, cause, at FROM job_events ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	byJob := make(map[uuid.UUID][]Entry)
	var order []uuid.UUID
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if _, seen := byJob[e.JobID]; !seen {
			order = append(order, e.JobID)
		}
		byJob[e.JobID] = append(byJob[e.JobID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Summary, len(order))
	for i, id := range order {
		out[i] = summarize(byJob[id])
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		id, kind   string
		atUnixNano int64
	)
	if err := rows.Scan(&e.Seq, &id, &kind, &e.Fraction, &e.Cause, &atUnixNano); err != nil {
		return Entry{}, fmt.Errorf("scanning event: %w", err)
	}
	jobID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("event %d: %w", e.Seq, err)
	}
	e.JobID = jobID
	if e.Kind, err = parseKind(kind); err != nil {
		return Entry{}, fmt.Errorf("event %d: %w", e.Seq, err)
	}
	e.At = time.Unix(0, atUnixNano)
	return e, nil
}

func parseKind(s string) (driver.EventKind, error) {
	for _, k := range []driver.EventKind{driver.EventProgress, driver.EventCompletion, driver.EventFailure} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// summarize folds a job's events into its latest state.
func summarize(events []Entry) Summary {
	s := Summary{JobID: events[0].JobID, State: driver.StateRunning, Events: len(events)}
	for _, e := range events {
		s.Updated = e.At
		switch e.Kind {
		case driver.EventProgress:
			s.Progress = e.Fraction
		case driver.EventCompletion:
			s.State = driver.StateCompleted
			s.Progress = 1
		case driver.EventFailure:
			s.State = driver.StateFailed
			s.Cause = e.Cause
		}
	}
	return s
}
