package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

func TestWrapDBError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		err      error
		wantNil  bool
		wantIs   error
		wantText string
	}{
		{
			name:    "nil error returns nil",
			op:      "get content",
			err:     nil,
			wantNil: true,
		},
		{
			name:     "sql.ErrNoRows converted to ErrNotFound",
			op:       "get content",
			err:      sql.ErrNoRows,
			wantIs:   storage.ErrNotFound,
			wantText: "get content: not found",
		},
		{
			name:   "lock contention converted to ErrBusy",
			op:     "save content",
			err:    errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantIs: storage.ErrBusy,
		},
		{
			name:     "generic error wrapped with context",
			op:       "save checkpoint",
			err:      errors.New("disk I/O error"),
			wantText: "save checkpoint: disk I/O error",
		},
		{
			name:   "already wrapped sentinel preserved",
			op:     "delete session",
			err:    fmt.Errorf("inner: %w", storage.ErrNotFound),
			wantIs: storage.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDBError(tt.op, tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("wrapDBError() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("wrapDBError() = nil, want error")
			}
			if tt.wantIs != nil && !errors.Is(got, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", got, tt.wantIs)
			}
			if tt.wantText != "" && got.Error() != tt.wantText {
				t.Errorf("Error() = %q, want %q", got.Error(), tt.wantText)
			}
		})
	}
}

func TestIsBusyError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked"), true},
		{errors.New("sqlite3: SQLITE_BUSY: database is locked"), true},
		{errors.New("UNIQUE constraint failed: content.id"), false},
		{sql.ErrNoRows, false},
	}
	for _, tt := range tests {
		if got := isBusyError(tt.err); got != tt.want {
			t.Errorf("isBusyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	if !IsUniqueConstraintError(errors.New("UNIQUE constraint failed: id_mappings.source_id")) {
		t.Error("constraint violation not detected")
	}
	if IsUniqueConstraintError(errors.New("database is locked")) {
		t.Error("busy error misclassified as constraint violation")
	}
	if IsUniqueConstraintError(nil) {
		t.Error("nil misclassified as constraint violation")
	}
}

func TestWithBusyRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("constraint violation")
	err := withBusyRetry(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (no retry on permanent errors)", calls)
	}
}

func TestWithBusyRetryRetriesContention(t *testing.T) {
	calls := 0
	err := withBusyRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Errorf("error = %v, want nil after retries", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestWithBusyRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withBusyRetry(ctx, func() error {
		return errors.New("database is locked")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context should stop retries, got %v", err)
	}
}

func TestWithBusyRetryExhaustionSurfacesErrBusy(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full retry window")
	}
	err := withBusyRetry(context.Background(), func() error {
		return errors.New("database is locked")
	})
	if !errors.Is(err, storage.ErrBusy) {
		t.Errorf("exhausted retry should wrap ErrBusy, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("get content: %w", storage.ErrNotFound)) {
		t.Error("wrapped ErrNotFound not detected")
	}
	if isNotFound(errors.New("other")) {
		t.Error("unrelated error misclassified")
	}
}
