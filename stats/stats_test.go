package stats_test

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tillworks/scanpipe/dbopen"
	"github.com/tillworks/scanpipe/stats"
)

func newRecorder(t *testing.T) *stats.Recorder {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(stats.Schema))
	r := stats.NewRecorder(db, 100, time.Hour, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndTotals(t *testing.T) {
	// WHAT: Recorded events aggregate per source and outcome after a flush.
	// WHY: The status endpoint reports where codes come from and how many
	// duplicates the gate suppressed.
	r := newRecorder(t)
	r.Record(stats.Event{Source: "camera", Outcome: stats.OutcomeAccepted, Symbology: "qr"})
	r.Record(stats.Event{Source: "camera", Outcome: stats.OutcomeDuplicate})
	r.Record(stats.Event{Source: "wedge", Outcome: stats.OutcomeAccepted})
	r.Flush()

	totals, err := r.Totals(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if totals["camera"][stats.OutcomeAccepted] != 1 {
		t.Fatalf("camera accepted = %d, want 1", totals["camera"][stats.OutcomeAccepted])
	}
	if totals["camera"][stats.OutcomeDuplicate] != 1 {
		t.Fatalf("camera duplicate = %d, want 1", totals["camera"][stats.OutcomeDuplicate])
	}
	if totals["wedge"][stats.OutcomeAccepted] != 1 {
		t.Fatalf("wedge accepted = %d, want 1", totals["wedge"][stats.OutcomeAccepted])
	}
}

func TestBufferSizeTriggersFlush(t *testing.T) {
	// WHAT: Filling the buffer flushes without waiting for the ticker.
	// WHY: A busy lane must not hold hundreds of events in memory.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(stats.Schema))
	r := stats.NewRecorder(db, 2, time.Hour, nil)
	defer r.Close()

	r.Record(stats.Event{Source: "camera", Outcome: stats.OutcomeAccepted})
	r.Record(stats.Event{Source: "camera", Outcome: stats.OutcomeAccepted})

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scan_events`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 persisted events, got %d", n)
	}
}

func TestTotals_SinceCutoff(t *testing.T) {
	// WHAT: Totals with a cutoff excludes older events.
	// WHY: The status surface reports a recent window, not all history.
	r := newRecorder(t)
	r.Record(stats.Event{At: time.Now().Add(-time.Hour), Source: "hid", Outcome: stats.OutcomeAccepted})
	r.Record(stats.Event{At: time.Now(), Source: "hid", Outcome: stats.OutcomeAccepted})
	r.Flush()

	totals, err := r.Totals(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if totals["hid"][stats.OutcomeAccepted] != 1 {
		t.Fatalf("recent hid accepted = %d, want 1", totals["hid"][stats.OutcomeAccepted])
	}
}

func TestCleanup(t *testing.T) {
	// WHAT: Cleanup removes events older than the retention window.
	// WHY: The events table must not grow without bound on a till.
	r := newRecorder(t)
	r.Record(stats.Event{At: time.Now().Add(-48 * time.Hour), Source: "camera", Outcome: stats.OutcomeError})
	r.Record(stats.Event{At: time.Now(), Source: "camera", Outcome: stats.OutcomeAccepted})
	r.Flush()

	removed, err := r.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestCloseFlushesBuffer(t *testing.T) {
	// WHAT: Close drains any buffered events before returning.
	// WHY: Shutdown must not drop the tail of the session.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(stats.Schema))
	r := stats.NewRecorder(db, 100, time.Hour, nil)
	r.Record(stats.Event{Source: "vision", Outcome: stats.OutcomeAccepted})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scan_events`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 persisted event after Close, got %d", n)
	}
}
