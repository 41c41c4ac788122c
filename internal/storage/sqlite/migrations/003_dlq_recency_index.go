package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// MigrateDLQRecencyIndex adds the descending failed_at index the dlq list
// command sorts on. Older stores only had the session_id index, which made
// "most recent failures" scans quadratic on large queues.
func MigrateDLQRecencyIndex(ctx context.Context, conn *sql.Conn) error {
	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_dlq_failed_at",
			sql:  `CREATE INDEX IF NOT EXISTS idx_dlq_failed_at ON dead_letter_queue(failed_at DESC)`,
		},
	}

	for _, idx := range indexes {
		if _, err := conn.ExecContext(ctx, idx.sql); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}
