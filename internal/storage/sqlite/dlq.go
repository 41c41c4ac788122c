package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

const dlqColumns = `id, session_id, content_id, content_type, content_data,
       error_message, error_type, stack_trace, retry_count, failed_at, metadata`

// SaveDLQItem upserts a dead-letter item on its uniqueness key
// (session_id, content_id, content_type, retry_count). Re-failing the same
// item at the same retry level keeps one row with the latest message.
func (s *Store) SaveDLQItem(ctx context.Context, item *types.DeadLetterItem) error {
	if item.SessionID == "" || item.ContentID == "" {
		return fmt.Errorf("dlq item requires session id and content id")
	}
	if !item.ContentType.IsValid() {
		return fmt.Errorf("invalid dlq content type: %q", item.ContentType)
	}
	if item.ErrorType == "" {
		item.ErrorType = types.KindUnknown
	}
	if item.FailedAt.IsZero() {
		item.FailedAt = time.Now().UTC()
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dead_letter_queue (session_id, content_id, content_type, content_data,
			                               error_message, error_type, stack_trace, retry_count,
			                               failed_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, content_id, content_type, retry_count) DO UPDATE SET
				content_data  = excluded.content_data,
				error_message = excluded.error_message,
				error_type    = excluded.error_type,
				stack_trace   = excluded.stack_trace,
				failed_at     = excluded.failed_at,
				metadata      = excluded.metadata
		`, item.SessionID, item.ContentID, item.ContentType, item.ContentData,
			item.ErrorMessage, item.ErrorType,
			sql.NullString{String: item.StackTrace, Valid: item.StackTrace != ""},
			item.RetryCount, item.FailedAt, jsonOrEmpty(item.Metadata))
		return wrapDBErrorf(err, "save dlq item %s/%s", item.ContentType, item.ContentID)
	})
}

// ListDLQ returns dead-letter items, most recent failures first.
func (s *Store) ListDLQ(ctx context.Context, filter types.DLQFilter) ([]*types.DeadLetterItem, error) {
	clauses := []string{}
	args := []any{}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ContentType != "" {
		clauses = append(clauses, "content_type = ?")
		args = append(args, filter.ContentType)
	}
	if filter.Since != nil {
		clauses = append(clauses, "failed_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY failed_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...) // #nosec G202 - where clause built from placeholders only
	if err != nil {
		return nil, wrapDBError("list dlq", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.DeadLetterItem
	for rows.Next() {
		item, err := scanDLQItem(rows)
		if err != nil {
			return nil, wrapDBError("scan dlq item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetDLQItem fetches one dead-letter item by row ID.
func (s *Store) GetDLQItem(ctx context.Context, id int64) (*types.DeadLetterItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dlqColumns+` FROM dead_letter_queue WHERE id = ?`, id)
	item, err := scanDLQItem(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get dlq item %d", id)
	}
	return item, nil
}

// DeleteDLQItem removes one dead-letter item (operator discard or a
// successful retry).
func (s *Store) DeleteDLQItem(ctx context.Context, id int64) error {
	return withBusyRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
		if err != nil {
			return wrapDBErrorf(err, "delete dlq item %d", id)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("delete dlq item %d: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

// ClearDLQ deletes dead-letter items, scoped to a session when sessionID is
// non-empty. Returns the number of rows removed.
func (s *Store) ClearDLQ(ctx context.Context, sessionID string) (int, error) {
	var deleted int
	err := withBusyRetry(ctx, func() error {
		query := `DELETE FROM dead_letter_queue`
		args := []any{}
		if sessionID != "" {
			query += ` WHERE session_id = ?`
			args = append(args, sessionID)
		}
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return wrapDBError("clear dlq", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted = int(rows)
		return nil
	})
	return deleted, err
}

func scanDLQItem(row rowScanner) (*types.DeadLetterItem, error) {
	var (
		item       types.DeadLetterItem
		stackTrace sql.NullString
		metadata   string
	)
	err := row.Scan(&item.ID, &item.SessionID, &item.ContentID, &item.ContentType,
		&item.ContentData, &item.ErrorMessage, &item.ErrorType, &stackTrace,
		&item.RetryCount, &item.FailedAt, &metadata)
	if err != nil {
		return nil, err
	}
	if stackTrace.Valid {
		item.StackTrace = stackTrace.String
	}
	item.Metadata = []byte(metadata)
	return &item, nil
}
