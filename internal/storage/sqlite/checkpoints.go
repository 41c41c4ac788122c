package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// Extraction and restoration checkpoints have identical shapes in separate
// tables. The table name is a package constant in each wrapper, never user
// input, so the fmt.Sprintf-built SQL below is injection-safe.

// SaveExtractionCheckpoint upserts a checkpoint on its natural key
// (session_id, content_type, started_at). A later save with the same key
// atomically replaces the earlier row's data and counters.
func (s *Store) SaveExtractionCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	return s.saveCheckpoint(ctx, "sync_checkpoints", cp)
}

// GetLatestExtractionCheckpoint returns the most recent checkpoint for the
// content type, scoped to sessionID when non-empty.
func (s *Store) GetLatestExtractionCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	return s.getLatestCheckpoint(ctx, "sync_checkpoints", ct, sessionID)
}

// ListExtractionCheckpoints returns a session's checkpoints, newest first.
func (s *Store) ListExtractionCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	return s.listCheckpoints(ctx, "sync_checkpoints", sessionID)
}

// SaveRestorationCheckpoint upserts a restoration checkpoint on its
// natural key.
func (s *Store) SaveRestorationCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	return s.saveCheckpoint(ctx, "restoration_checkpoints", cp)
}

// GetLatestRestorationCheckpoint returns the most recent restoration
// checkpoint for the content type, scoped to sessionID when non-empty.
func (s *Store) GetLatestRestorationCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	return s.getLatestCheckpoint(ctx, "restoration_checkpoints", ct, sessionID)
}

// ListRestorationCheckpoints returns a session's restoration checkpoints,
// newest first.
func (s *Store) ListRestorationCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	return s.listCheckpoints(ctx, "restoration_checkpoints", sessionID)
}

func (s *Store) saveCheckpoint(ctx context.Context, table string, cp *types.Checkpoint) error {
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint session id is required")
	}
	if !cp.ContentType.IsValid() {
		return fmt.Errorf("invalid checkpoint content type: %q", cp.ContentType)
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(cp.Data)
	if err != nil {
		return fmt.Errorf("marshal checkpoint data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, content_type, checkpoint_data, started_at,
		                completed_at, item_count, error_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, content_type, started_at) DO UPDATE SET
			checkpoint_data = excluded.checkpoint_data,
			completed_at    = excluded.completed_at,
			item_count      = excluded.item_count,
			error_count     = excluded.error_count,
			error_message   = excluded.error_message
	`, table) // #nosec G201 - table name is a package constant

	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			cp.SessionID, cp.ContentType, string(data), cp.StartedAt,
			nullTime(cp.CompletedAt), cp.ItemCount, cp.ErrorCount,
			sql.NullString{String: cp.ErrorMessage, Valid: cp.ErrorMessage != ""})
		return wrapDBErrorf(err, "save checkpoint %s/%s", cp.SessionID, cp.ContentType)
	})
}

func (s *Store) getLatestCheckpoint(ctx context.Context, table string, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, content_type, checkpoint_data, started_at,
		       completed_at, item_count, error_count, error_message
		FROM %s WHERE content_type = ?`, table) // #nosec G201
	args := []any{ct}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY started_at DESC LIMIT 1"

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrapDBErrorf(err, "get latest checkpoint %s", ct)
	}
	return cp, nil
}

func (s *Store) listCheckpoints(ctx context.Context, table, sessionID string) ([]*types.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, content_type, checkpoint_data, started_at,
		       completed_at, item_count, error_count, error_message
		FROM %s WHERE session_id = ? ORDER BY started_at DESC`, table) // #nosec G201

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list checkpoints %s", sessionID)
	}
	defer func() { _ = rows.Close() }()

	var checkpoints []*types.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, wrapDBError("scan checkpoint", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

func scanCheckpoint(row rowScanner) (*types.Checkpoint, error) {
	var (
		cp          types.Checkpoint
		data        string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.ContentType, &data, &cp.StartedAt,
		&completedAt, &cp.ItemCount, &cp.ErrorCount, &errMsg)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &cp.Data); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint data: %w", err)
	}
	cp.CompletedAt = timePtr(completedAt)
	if errMsg.Valid {
		cp.ErrorMessage = errMsg.String
	}
	return &cp, nil
}
