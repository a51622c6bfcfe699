package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Write contention handling. SQLite reports SQLITE_BUSY when another
// writer holds the lock past busy_timeout; the sales log retries its
// flush transaction a few times with a growing pause before giving up.
const (
	txAttempts = 3
	txBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is SQLite lock contention. The driver
// surfaces it as message text, so this matches the known forms.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction and retries lock contention. A sale
// flush writes the header and every line in one call, so it must land
// atomically even while the stats recorder is batching into the same
// process.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = runTxOnce(ctx, db, fn)
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt < txAttempts {
			if werr := sleepCtx(ctx, time.Duration(attempt)*txBackoff); werr != nil {
				return fmt.Errorf("dbopen: retry wait: %w", werr)
			}
		}
	}
	return fmt.Errorf("dbopen: transaction kept hitting lock contention: %w", err)
}

func runTxOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
