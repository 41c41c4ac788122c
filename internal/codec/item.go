package codec

import (
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// ItemFromPayload converts an API payload into a persistable content item.
// The payload is stored in its deterministic binary form; the indexed
// columns (name, owner, folder, parent, timestamps) are lifted out for
// querying. Both extraction and pack build repository rows through this
// one path so the two always agree on the lifted columns.
func ItemFromPayload(ct types.ContentType, payload map[string]any) (*types.ContentItem, error) {
	id, ok := PayloadID(ct, payload)
	if !ok {
		return nil, fmt.Errorf("%s payload has no id", ct)
	}

	data, err := Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", ct, id, err)
	}

	item := &types.ContentItem{
		ID:          id,
		ContentType: ct,
		Name:        DisplayName(ct, payload),
		ContentData: data,
		ContentSize: int64(len(data)),
	}

	if owner, ok := StringField(payload, "user_id"); ok {
		item.OwnerID = &owner
	}
	if folder, ok := StringField(payload, "folder_id"); ok {
		item.FolderID = &folder
	}
	if parent, ok := StringField(payload, "parent_id"); ok {
		item.ParentID = &parent
	}
	if t, ok := TimeField(payload, "created_at"); ok {
		item.CreatedAt = t
	}
	if t, ok := TimeField(payload, "updated_at"); ok {
		item.UpdatedAt = t
	} else {
		item.UpdatedAt = time.Now().UTC()
	}
	if deleted, ok := payload["deleted"].(bool); ok {
		item.Deleted = deleted
	}
	return item, nil
}
