package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// CreateExtractionSession upserts a session row by ID. started_at is
// preserved when the row already exists, so re-creating a session after a
// crash never rewrites history.
func (s *Store) CreateExtractionSession(ctx context.Context, session *types.ExtractionSession) error {
	if err := validateSession(session.ID, session.Status); err != nil {
		return err
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO extraction_sessions (id, started_at, completed_at, status,
			                                 total_items, success_count, error_count, config, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				completed_at  = excluded.completed_at,
				status        = excluded.status,
				total_items   = excluded.total_items,
				success_count = excluded.success_count,
				error_count   = excluded.error_count,
				config        = excluded.config,
				metadata      = excluded.metadata
		`, session.ID, session.StartedAt, nullTime(session.CompletedAt), session.Status,
			session.TotalItems, session.SuccessCount, session.ErrorCount,
			jsonOrEmpty(session.Config), jsonOrEmpty(session.Metadata))
		return wrapDBErrorf(err, "create extraction session %s", session.ID)
	})
}

// UpdateExtractionSession updates a session's mutable columns. It shares
// the upsert with CreateExtractionSession: started_at never changes.
func (s *Store) UpdateExtractionSession(ctx context.Context, session *types.ExtractionSession) error {
	return s.CreateExtractionSession(ctx, session)
}

// GetExtractionSession fetches one session, or storage.ErrNotFound.
func (s *Store) GetExtractionSession(ctx context.Context, id string) (*types.ExtractionSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, status, total_items, success_count, error_count, config, metadata
		FROM extraction_sessions WHERE id = ?
	`, id)

	var (
		session     types.ExtractionSession
		completedAt sql.NullTime
		config      string
		metadata    string
	)
	err := row.Scan(&session.ID, &session.StartedAt, &completedAt, &session.Status,
		&session.TotalItems, &session.SuccessCount, &session.ErrorCount, &config, &metadata)
	if err != nil {
		return nil, wrapDBErrorf(err, "get extraction session %s", id)
	}
	session.CompletedAt = timePtr(completedAt)
	session.Config = []byte(config)
	session.Metadata = []byte(metadata)
	return &session, nil
}

// ListExtractionSessions returns the most recent sessions, newest first.
func (s *Store) ListExtractionSessions(ctx context.Context, limit int) ([]*types.ExtractionSession, error) {
	query := `
		SELECT id, started_at, completed_at, status, total_items, success_count, error_count, config, metadata
		FROM extraction_sessions ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("list extraction sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.ExtractionSession
	for rows.Next() {
		var (
			session     types.ExtractionSession
			completedAt sql.NullTime
			config      string
			metadata    string
		)
		if err := rows.Scan(&session.ID, &session.StartedAt, &completedAt, &session.Status,
			&session.TotalItems, &session.SuccessCount, &session.ErrorCount, &config, &metadata); err != nil {
			return nil, wrapDBError("scan extraction session", err)
		}
		session.CompletedAt = timePtr(completedAt)
		session.Config = []byte(config)
		session.Metadata = []byte(metadata)
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// CreateRestorationSession upserts a restoration session row by ID with the
// same started_at preservation as extraction sessions.
func (s *Store) CreateRestorationSession(ctx context.Context, session *types.RestorationSession) error {
	if err := validateSession(session.ID, session.Status); err != nil {
		return err
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO restoration_sessions (id, started_at, completed_at, status,
			                                  total_items, success_count, error_count,
			                                  source_instance, destination_instance, config, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				completed_at         = excluded.completed_at,
				status               = excluded.status,
				total_items          = excluded.total_items,
				success_count        = excluded.success_count,
				error_count          = excluded.error_count,
				source_instance      = excluded.source_instance,
				destination_instance = excluded.destination_instance,
				config               = excluded.config,
				metadata             = excluded.metadata
		`, session.ID, session.StartedAt, nullTime(session.CompletedAt), session.Status,
			session.TotalItems, session.SuccessCount, session.ErrorCount,
			session.SourceInstance, session.DestinationInstance,
			jsonOrEmpty(session.Config), jsonOrEmpty(session.Metadata))
		return wrapDBErrorf(err, "create restoration session %s", session.ID)
	})
}

// UpdateRestorationSession updates a session's mutable columns; started_at
// never changes.
func (s *Store) UpdateRestorationSession(ctx context.Context, session *types.RestorationSession) error {
	return s.CreateRestorationSession(ctx, session)
}

// GetRestorationSession fetches one session, or storage.ErrNotFound.
func (s *Store) GetRestorationSession(ctx context.Context, id string) (*types.RestorationSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, completed_at, status, total_items, success_count, error_count,
		       source_instance, destination_instance, config, metadata
		FROM restoration_sessions WHERE id = ?
	`, id)
	session, err := scanRestorationSession(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get restoration session %s", id)
	}
	return session, nil
}

// ListRestorationSessions returns the most recent sessions, newest first.
func (s *Store) ListRestorationSessions(ctx context.Context, limit int) ([]*types.RestorationSession, error) {
	query := `
		SELECT id, started_at, completed_at, status, total_items, success_count, error_count,
		       source_instance, destination_instance, config, metadata
		FROM restoration_sessions ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("list restoration sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.RestorationSession
	for rows.Next() {
		session, err := scanRestorationSession(rows)
		if err != nil {
			return nil, wrapDBError("scan restoration session", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteRestorationSession removes a session. Foreign keys cascade the
// delete to the session's checkpoints and dead-letter items.
func (s *Store) DeleteRestorationSession(ctx context.Context, id string) error {
	return withBusyRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM restoration_sessions WHERE id = ?`, id)
		if err != nil {
			return wrapDBErrorf(err, "delete restoration session %s", id)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("delete restoration session %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

func scanRestorationSession(row rowScanner) (*types.RestorationSession, error) {
	var (
		session     types.RestorationSession
		completedAt sql.NullTime
		config      string
		metadata    string
	)
	err := row.Scan(&session.ID, &session.StartedAt, &completedAt, &session.Status,
		&session.TotalItems, &session.SuccessCount, &session.ErrorCount,
		&session.SourceInstance, &session.DestinationInstance, &config, &metadata)
	if err != nil {
		return nil, err
	}
	session.CompletedAt = timePtr(completedAt)
	session.Config = []byte(config)
	session.Metadata = []byte(metadata)
	return &session, nil
}

func validateSession(id string, status types.SessionStatus) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if !status.IsValid() {
		return fmt.Errorf("invalid session status: %q", status)
	}
	return nil
}

// jsonOrEmpty defaults a raw JSON column to an empty object so callers can
// always json.Unmarshal what comes back.
func jsonOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
