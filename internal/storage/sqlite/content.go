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

// contentColumns is the canonical select list for content_items rows.
const contentColumns = `id, content_type, name, owner_id, folder_id, parent_id,
       created_at, updated_at, deleted, content_data, content_size`

// SaveContent upserts a content item by its primary key. created_at is
// preserved when the row already exists; every other column takes the
// incoming value. Saving identical bytes twice leaves the row identical.
func (s *Store) SaveContent(ctx context.Context, item *types.ContentItem) error {
	return withBusyRetry(ctx, func() error {
		return saveContent(ctx, s.db, item)
	})
}

// SaveContentBatch saves many items inside one immediate transaction.
func (s *Store) SaveContentBatch(ctx context.Context, items []*types.ContentItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		for _, item := range items {
			if err := tx.SaveContent(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveContent(ctx context.Context, db execer, item *types.ContentItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	if item.ContentSize == 0 {
		item.ContentSize = int64(len(item.ContentData))
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO content_items (id, content_type, name, owner_id, folder_id, parent_id,
		                           created_at, updated_at, deleted, content_data, content_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			name         = excluded.name,
			owner_id     = excluded.owner_id,
			folder_id    = excluded.folder_id,
			parent_id    = excluded.parent_id,
			updated_at   = excluded.updated_at,
			deleted      = excluded.deleted,
			content_data = excluded.content_data,
			content_size = excluded.content_size
	`, item.ID, item.ContentType, item.Name,
		nullString(item.OwnerID), nullString(item.FolderID), nullString(item.ParentID),
		item.CreatedAt, item.UpdatedAt, item.Deleted, item.ContentData, item.ContentSize)
	if err != nil {
		return wrapDBErrorf(err, "save content %s/%s", item.ContentType, item.ID)
	}
	return nil
}

// GetContent fetches one content item, or storage.ErrNotFound.
func (s *Store) GetContent(ctx context.Context, ct types.ContentType, id string) (*types.ContentItem, error) {
	return getContent(ctx, s.db, ct, id)
}

func getContent(ctx context.Context, db execer, ct types.ContentType, id string) (*types.ContentItem, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items
		WHERE content_type = ? AND id = ?
	`, ct, id)
	item, err := scanContentItem(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get content %s/%s", ct, id)
	}
	return item, nil
}

// ListContent returns matching items ordered deterministically by id ASC.
func (s *Store) ListContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) ([]*types.ContentItem, error) {
	where, args := contentWhere(ct, filter)

	query := `SELECT ` + contentColumns + ` FROM content_items ` + where + ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...) // #nosec G202 - where clause built from placeholders only
	if err != nil {
		return nil, wrapDBErrorf(err, "list content %s", ct)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, wrapDBErrorf(err, "scan content %s", ct)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountContent returns the number of rows ListContent would match, ignoring
// pagination.
func (s *Store) CountContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) (int, error) {
	filter.Limit = 0
	filter.Offset = 0
	where, args := contentWhere(ct, filter)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items `+where, args...).Scan(&count) // #nosec G202
	if err != nil {
		return 0, wrapDBErrorf(err, "count content %s", ct)
	}
	return count, nil
}

// MarkContentDeleted soft-deletes a content item (pack --force prune path).
func (s *Store) MarkContentDeleted(ctx context.Context, ct types.ContentType, id string) error {
	return withBusyRetry(ctx, func() error {
		return markContentDeleted(ctx, s.db, ct, id)
	})
}

func markContentDeleted(ctx context.Context, db execer, ct types.ContentType, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE content_items SET deleted = 1, updated_at = ? WHERE content_type = ? AND id = ?
	`, time.Now().UTC(), ct, id)
	if err != nil {
		return wrapDBErrorf(err, "mark content deleted %s/%s", ct, id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark content deleted %s/%s: %w", ct, id, storage.ErrNotFound)
	}
	return nil
}

// contentWhere builds the shared WHERE clause for list and count.
func contentWhere(ct types.ContentType, filter types.ContentFilter) (string, []any) {
	clauses := []string{"content_type = ?"}
	args := []any{ct}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "deleted = 0")
	}
	if len(filter.FolderIDs) > 0 {
		placeholders := strings.Repeat("?,", len(filter.FolderIDs))
		clauses = append(clauses, fmt.Sprintf("folder_id IN (%s)", placeholders[:len(placeholders)-1]))
		for _, fid := range filter.FolderIDs {
			args = append(args, fid)
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner lets scanContentItem work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*types.ContentItem, error) {
	var (
		item     types.ContentItem
		ownerID  sql.NullString
		folderID sql.NullString
		parentID sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.ContentType, &item.Name,
		&ownerID, &folderID, &parentID,
		&item.CreatedAt, &item.UpdatedAt, &item.Deleted,
		&item.ContentData, &item.ContentSize,
	)
	if err != nil {
		return nil, err
	}
	item.OwnerID = strPtr(ownerID)
	item.FolderID = strPtr(folderID)
	item.ParentID = strPtr(parentID)
	return &item, nil
}
