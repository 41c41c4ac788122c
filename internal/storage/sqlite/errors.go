package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to storage.ErrNotFound and lock contention to
// storage.ErrBusy so callers can classify with errors.Is.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if isBusyError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf wraps a database error with formatted operation context.
func wrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

// isNotFound checks if an error is or wraps storage.ErrNotFound
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
