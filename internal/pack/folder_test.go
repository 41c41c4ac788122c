package pack

import (
	"errors"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func folderRow(id, name, parent string) *types.ContentItem {
	item := &types.ContentItem{ID: id, ContentType: types.TypeFolder, Name: name}
	if parent != "" {
		p := parent
		item.ParentID = &p
	}
	return item
}

func TestBuildFolderTreePaths(t *testing.T) {
	tree, err := buildFolderTree([]*types.ContentItem{
		folderRow("f1", "Sales", ""),
		folderRow("f2", "Regional", "f1"),
		folderRow("f3", "Weekly Reports", "f2"),
	})
	if err != nil {
		t.Fatalf("buildFolderTree: %v", err)
	}
	if got := tree.pathOf("f3"); got != "Sales/Regional/Weekly Reports" {
		t.Errorf("path = %q, want Sales/Regional/Weekly Reports", got)
	}

	entries := tree.mapEntries()
	if e := entries["f1"]; e.Depth != 0 || e.ChildCount != 1 || e.ParentID != "" {
		t.Errorf("f1 entry = %+v", e)
	}
	if e := entries["f3"]; e.Depth != 2 || e.ParentID != "f2" || e.Path != "Sales/Regional/Weekly Reports" {
		t.Errorf("f3 entry = %+v", e)
	}
}

func TestBuildFolderTreeDeduplicatesSiblings(t *testing.T) {
	// Same display name twice at the root, differing only in case.
	tree, err := buildFolderTree([]*types.ContentItem{
		folderRow("f1", "Team: East", ""),
		folderRow("f2", "team_ east", ""),
	})
	if err != nil {
		t.Fatalf("buildFolderTree: %v", err)
	}
	if got := tree.pathOf("f1"); got != "Team_ East" {
		t.Errorf("f1 path = %q, want Team_ East", got)
	}
	if got := tree.pathOf("f2"); got != "team_ east (2)" {
		t.Errorf("f2 path = %q, want \"team_ east (2)\"", got)
	}
}

func TestBuildFolderTreeMissingParentIsRoot(t *testing.T) {
	tree, err := buildFolderTree([]*types.ContentItem{
		folderRow("f9", "Stranded", "gone"),
	})
	if err != nil {
		t.Fatalf("buildFolderTree: %v", err)
	}
	if got := tree.pathOf("f9"); got != "Stranded" {
		t.Errorf("path = %q, want Stranded", got)
	}
	// The original parent reference survives in the map even though the
	// folder is laid out as a root.
	if e := tree.mapEntries()["f9"]; e.ParentID != "gone" || e.Depth != 0 {
		t.Errorf("entry = %+v", e)
	}
}

func TestBuildFolderTreeCycle(t *testing.T) {
	_, err := buildFolderTree([]*types.ContentItem{
		folderRow("a", "A", "b"),
		folderRow("b", "B", "a"),
		folderRow("r", "Root", ""),
	})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cerr.Path) != 2 {
		t.Errorf("cycle path = %v, want 2 folders", cerr.Path)
	}
	if got := cerr.Error(); got != "circular folder reference: a -> b -> a" {
		t.Errorf("message = %q", got)
	}
}

func TestNameSetClaimFile(t *testing.T) {
	ns := newNameSet()
	if got := ns.claimFile("Revenue", ".yaml"); got != "Revenue.yaml" {
		t.Errorf("first claim = %q", got)
	}
	if got := ns.claimFile("Revenue", ".yaml"); got != "Revenue (2).yaml" {
		t.Errorf("second claim = %q", got)
	}
	// Case-insensitive: a lowercase variant still collides with both.
	if got := ns.claimFile("revenue", ".yaml"); got != "revenue (3).yaml" {
		t.Errorf("third claim = %q", got)
	}
}
