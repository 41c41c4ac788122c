package restore

import (
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func folderItem(id, parent string) *types.ContentItem {
	item := &types.ContentItem{ID: id, ContentType: types.TypeFolder}
	if parent != "" {
		item.ParentID = &parent
	}
	return item
}

func position(t *testing.T, ordered []*types.ContentItem, id string) int {
	t.Helper()
	for i, item := range ordered {
		if item.ID == id {
			return i
		}
	}
	t.Fatalf("item %s missing from ordered output", id)
	return -1
}

func TestOrderFoldersParentBeforeChild(t *testing.T) {
	// Deliberately shuffled: deepest first.
	items := []*types.ContentItem{
		folderItem("fC", "fB"),
		folderItem("fA", ""),
		folderItem("fB", "fA"),
	}
	ordered := orderFolders(items)
	if len(ordered) != 3 {
		t.Fatalf("ordered = %d items, want 3", len(ordered))
	}
	a := position(t, ordered, "fA")
	b := position(t, ordered, "fB")
	c := position(t, ordered, "fC")
	if a > b || b > c {
		t.Errorf("order = fA@%d fB@%d fC@%d, want parents first", a, b, c)
	}
}

func TestOrderFoldersExternalParentIsRoot(t *testing.T) {
	// fX's parent was not extracted; it must still restore, as a root.
	items := []*types.ContentItem{
		folderItem("fX", "outside"),
		folderItem("fY", "fX"),
	}
	ordered := orderFolders(items)
	if len(ordered) != 2 {
		t.Fatalf("ordered = %d items, want 2", len(ordered))
	}
	if position(t, ordered, "fX") > position(t, ordered, "fY") {
		t.Error("child ordered before its in-set parent")
	}
}

func TestOrderFoldersCycleAppendedLast(t *testing.T) {
	items := []*types.ContentItem{
		folderItem("cycB", "cycA"),
		folderItem("root", ""),
		folderItem("cycA", "cycB"),
		folderItem("leaf", "root"),
	}
	ordered := orderFolders(items)
	if len(ordered) != 4 {
		t.Fatalf("ordered = %d items, want 4 (cycle members kept)", len(ordered))
	}
	r := position(t, ordered, "root")
	l := position(t, ordered, "leaf")
	ca := position(t, ordered, "cycA")
	cb := position(t, ordered, "cycB")
	if r > l {
		t.Error("leaf before root")
	}
	if ca < l || cb < l {
		t.Error("cycle members ordered before reachable folders")
	}
	if ca > cb {
		t.Error("cycle members not in deterministic ID order")
	}
}

func TestOrderFoldersEmpty(t *testing.T) {
	if got := orderFolders(nil); len(got) != 0 {
		t.Errorf("orderFolders(nil) = %v, want empty", got)
	}
}
