package extract

import (
	"github.com/z3z1ma/lookervault-sub000/internal/codec"
)

// matchesFolders applies the in-memory folder filter used by types the
// API cannot filter server-side. Payloads without a folder_id pass
// through; the filter only constrains foldered content.
func matchesFolders(payload map[string]any, folderIDs map[string]struct{}) bool {
	if len(folderIDs) == 0 {
		return true
	}
	folder, ok := codec.StringField(payload, "folder_id")
	if !ok {
		return true
	}
	_, match := folderIDs[folder]
	return match
}
