package main

import (
	"context"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/config"
	"github.com/z3z1ma/lookervault-sub000/internal/storage/sqlite"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func TestOrZero(t *testing.T) {
	if got := orZero(0, 8); got != 8 {
		t.Errorf("unset flag should fall back, got %d", got)
	}
	if got := orZero(4, 8); got != 4 {
		t.Errorf("set flag should win, got %d", got)
	}
}

func TestEffectiveWorkersCapped(t *testing.T) {
	f := &runFlags{workers: 64}
	if got := f.effectiveWorkers(config.Default()); got != config.MaxWorkers {
		t.Errorf("workers = %d, want cap %d", got, config.MaxWorkers)
	}
	f = &runFlags{}
	if got := f.effectiveWorkers(config.Default()); got != config.Default().Workers {
		t.Errorf("workers = %d, want config default", got)
	}
}

func folderItem(t *testing.T, id string, parent *string) *types.ContentItem {
	t.Helper()
	payload := map[string]any{"id": id, "name": "folder " + id}
	if parent != nil {
		payload["parent_id"] = *parent
	}
	data, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode folder %s: %v", id, err)
	}
	return &types.ContentItem{
		ID:          id,
		ContentType: types.TypeFolder,
		Name:        "folder " + id,
		ParentID:    parent,
		ContentData: data,
	}
}

func TestExpandFolderIDs(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()
	store = s
	defer func() { store = nil }()

	// 1 -> 2 -> 3, with 4 parented elsewhere.
	p1, p2, p9 := "1", "2", "9"
	for _, item := range []*types.ContentItem{
		folderItem(t, "1", nil),
		folderItem(t, "2", &p1),
		folderItem(t, "3", &p2),
		folderItem(t, "4", &p9),
	} {
		if err := s.SaveContent(ctx, item); err != nil {
			t.Fatalf("save folder %s: %v", item.ID, err)
		}
	}

	got, err := expandFolderIDs(ctx, []string{"1"}, true)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := map[string]bool{"1": true, "2": true, "3": true}
	if len(got) != len(want) {
		t.Fatalf("expanded to %v, want ids %v", got, want)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected id %s in %v", id, got)
		}
	}

	flat, err := expandFolderIDs(ctx, []string{"1"}, false)
	if err != nil {
		t.Fatalf("expand non-recursive: %v", err)
	}
	if len(flat) != 1 || flat[0] != "1" {
		t.Errorf("non-recursive should pass through, got %v", flat)
	}

	none, err := expandFolderIDs(ctx, nil, true)
	if err != nil || none != nil {
		t.Errorf("empty filter should stay empty, got %v, %v", none, err)
	}
}
