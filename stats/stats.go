// Package stats records capture-pipeline events to SQLite.
//
// Recording is async and non-blocking: events are buffered in memory and
// flushed in batches, and buffer growth never applies backpressure to the
// scan loop. A lost datapoint is preferable to a stalled scan.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Schema is the stats store schema.
const Schema = `
CREATE TABLE IF NOT EXISTS scan_events (
    ts          INTEGER NOT NULL,
    source      TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    symbology   TEXT NOT NULL DEFAULT '',
    code        TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scan_events_ts ON scan_events(ts);
CREATE INDEX IF NOT EXISTS idx_scan_events_source ON scan_events(source, outcome);
`

// Outcome values recorded per event.
const (
	OutcomeAccepted   = "accepted"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
	OutcomeError      = "error"
)

// Event is one pipeline occurrence: a code accepted, suppressed as a
// duplicate, rejected by the catalog, or failed outright.
type Event struct {
	At        time.Time
	Source    string // "camera", "wedge", "hid", "vision", "manual"
	Outcome   string
	Symbology string
	Code      string
	Duration  time.Duration // capture-to-outcome latency, zero when unknown
}

// Recorder buffers events and flushes them to SQLite in batches.
type Recorder struct {
	db            *sql.DB
	log           *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Event

	stop chan struct{}
	done chan struct{}
}

// NewRecorder starts a recorder flushing every flushInterval or whenever
// bufferSize events accumulate, whichever comes first.
func NewRecorder(db *sql.DB, bufferSize int, flushInterval time.Duration, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	r := &Recorder{
		db:            db,
		log:           log,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]Event, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record queues an event for async persistence. Non-blocking.
func (r *Recorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, e)
	if len(r.buffer) >= r.bufferSize {
		r.flushLocked()
	}
}

// Totals aggregates event counts per source and outcome since a cutoff.
// A zero cutoff means all time.
func (r *Recorder) Totals(ctx context.Context, since time.Time) (map[string]map[string]int64, error) {
	q := `SELECT source, outcome, COUNT(*) FROM scan_events`
	args := []any{}
	if !since.IsZero() {
		q += ` WHERE ts >= ?`
		args = append(args, since.UnixMilli())
	}
	q += ` GROUP BY source, outcome`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: totals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int64)
	for rows.Next() {
		var source, outcome string
		var n int64
		if err := rows.Scan(&source, &outcome, &n); err != nil {
			return nil, fmt.Errorf("stats: scan totals: %w", err)
		}
		if out[source] == nil {
			out[source] = make(map[string]int64)
		}
		out[source][outcome] = n
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention and returns the count removed.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM scan_events WHERE ts < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("stats: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Flush writes any buffered events immediately.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close flushes remaining events and stops the background goroutine.
func (r *Recorder) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// flushLocked writes the buffer in one transaction. Callers hold r.mu.
func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error("stats: begin tx", "error", err)
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scan_events (ts, source, outcome, symbology, code, duration_ms) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		r.log.Error("stats: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range r.buffer {
		if _, err := stmt.ExecContext(ctx,
			e.At.UnixMilli(), e.Source, e.Outcome, e.Symbology, e.Code, e.Duration.Milliseconds()); err != nil {
			r.log.Error("stats: insert", "error", err, "source", e.Source)
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("stats: commit", "error", err)
	}
	r.buffer = r.buffer[:0]
}
