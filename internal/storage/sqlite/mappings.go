package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// SaveIDMapping upserts a source→destination ID mapping on its primary key
// (source_instance, content_type, source_id). A re-create on the
// destination overwrites with the latest destination ID.
func (s *Store) SaveIDMapping(ctx context.Context, mapping *types.IDMapping) error {
	if mapping.SourceInstance == "" || mapping.SourceID == "" || mapping.DestinationID == "" {
		return fmt.Errorf("id mapping requires source instance, source id, and destination id")
	}
	if !mapping.ContentType.IsValid() {
		return fmt.Errorf("invalid mapping content type: %q", mapping.ContentType)
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO id_mappings (source_instance, content_type, source_id,
			                         destination_id, created_at, session_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_instance, content_type, source_id) DO UPDATE SET
				destination_id = excluded.destination_id,
				session_id     = excluded.session_id
		`, mapping.SourceInstance, mapping.ContentType, mapping.SourceID,
			mapping.DestinationID, mapping.CreatedAt, mapping.SessionID)
		return wrapDBErrorf(err, "save id mapping %s/%s", mapping.ContentType, mapping.SourceID)
	})
}

// GetDestinationID resolves a source ID to its destination instance ID, or
// storage.ErrNotFound when no mapping exists.
func (s *Store) GetDestinationID(ctx context.Context, sourceInstance string, ct types.ContentType, sourceID string) (string, error) {
	var destinationID string
	err := s.db.QueryRowContext(ctx, `
		SELECT destination_id FROM id_mappings
		WHERE source_instance = ? AND content_type = ? AND source_id = ?
	`, sourceInstance, ct, sourceID).Scan(&destinationID)
	if err != nil {
		return "", wrapDBErrorf(err, "get destination id %s/%s", ct, sourceID)
	}
	return destinationID, nil
}
