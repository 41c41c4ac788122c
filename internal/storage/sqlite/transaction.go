package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// Verify sqliteTx implements storage.Tx at compile time
var _ storage.Tx = (*sqliteTx)(nil)

// sqliteTx implements the storage.Tx interface. It wraps a dedicated
// database connection with an active transaction.
type sqliteTx struct {
	conn *sql.Conn
}

// RunInTransaction executes a function within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to acquire the write lock early,
// preventing deadlocks when multiple goroutines compete for the same lock.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from pool
//  2. Begin IMMEDIATE transaction with retry on SQLITE_BUSY
//  3. Execute user function with Tx interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
//
// Panic safety: if the callback panics, the transaction is rolled back and
// the panic is re-raised to the caller.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	// All operations in the transaction must use the same connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTx{conn: conn}); err != nil {
		return err // Rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// SaveContent upserts a content item inside the transaction.
func (t *sqliteTx) SaveContent(ctx context.Context, item *types.ContentItem) error {
	return saveContent(ctx, t.conn, item)
}

// GetContent reads a content item through the transaction's connection,
// giving read-your-writes semantics within the transaction.
func (t *sqliteTx) GetContent(ctx context.Context, ct types.ContentType, id string) (*types.ContentItem, error) {
	return getContent(ctx, t.conn, ct, id)
}

// MarkContentDeleted soft-deletes a content item inside the transaction.
func (t *sqliteTx) MarkContentDeleted(ctx context.Context, ct types.ContentType, id string) error {
	return markContentDeleted(ctx, t.conn, ct, id)
}
