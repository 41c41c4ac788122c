package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

// execer is the subset of *sql.DB and *sql.Conn the query helpers need, so
// the same SQL runs against the pool and against a transaction's dedicated
// connection.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IsUniqueConstraintError checks if an error is a UNIQUE constraint violation
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusyError reports whether the error is SQLite lock contention. The
// busy_timeout pragma absorbs short waits; what surfaces here is sustained
// contention worth an application-level retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY")
}

const busyRetryMaxElapsed = 5 * time.Second

func newBusyRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = busyRetryMaxElapsed
	return bo
}

// withBusyRetry executes a write operation, retrying lock contention with
// jittered exponential backoff. When the retry window is exhausted the
// error surfaces as storage.ErrBusy, which callers may treat as transient.
func withBusyRetry(ctx context.Context, op func() error) error {
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && isBusyError(err) {
			return err // Retryable - backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err) // Non-retryable - stop immediately
		}
		return nil
	}, backoff.WithContext(newBusyRetryBackoff(), ctx))
	if err != nil && isBusyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrBusy, err)
	}
	return err
}

// beginWithRetry starts a transaction on a dedicated connection, retrying
// SQLITE_BUSY with doubling sleeps. stmt is "BEGIN IMMEDIATE" for normal
// writes and "BEGIN EXCLUSIVE" for migrations.
func beginWithRetry(ctx context.Context, conn *sql.Conn, stmt string, attempts int, baseDelay time.Duration) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		_, err = conn.ExecContext(ctx, stmt)
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %v", storage.ErrBusy, err)
}

// beginImmediateWithRetry acquires the write lock up front so competing
// writers queue here instead of deadlocking mid-transaction.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, baseDelay time.Duration) error {
	return beginWithRetry(ctx, conn, "BEGIN IMMEDIATE", attempts, baseDelay)
}

// nullString converts an optional string pointer for storage.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTime converts an optional timestamp pointer for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// strPtr returns a pointer for a valid NullString, nil otherwise.
func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// timePtr returns a pointer for a valid NullTime, nil otherwise.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
