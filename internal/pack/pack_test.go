package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/storage/sqlite"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedPayload(t *testing.T, store *sqlite.Store, ct types.ContentType, payload map[string]any) {
	t.Helper()
	item, err := codec.ItemFromPayload(ct, payload)
	if err != nil {
		t.Fatalf("build %s item: %v", ct, err)
	}
	if err := store.SaveContent(context.Background(), item); err != nil {
		t.Fatalf("seed %s content: %v", ct, err)
	}
}

// dashboardPayload has two elements sharing one query definition and a
// third element that references a look instead of an embedded query.
func dashboardPayload() map[string]any {
	element := func(id, queryID string) map[string]any {
		return map[string]any{
			"id":       id,
			"type":     "vis",
			"query_id": queryID,
			"query": map[string]any{
				"model":  "sales_old",
				"view":   "orders",
				"fields": []any{"orders.count"},
			},
		}
	}
	return map[string]any{
		"id":        "d1",
		"title":     "Executive Summary",
		"folder_id": "f1",
		"dashboard_elements": []any{
			element("e1", "q1"),
			element("e2", "q2"),
			map[string]any{"id": "e3", "type": "look", "look_id": "l1"},
		},
	}
}

func seedFixture(t *testing.T, store *sqlite.Store) {
	t.Helper()
	seedPayload(t, store, types.TypeUser, map[string]any{"id": "u1", "display_name": "Ada"})
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "f1", "name": "Sales"})
	seedPayload(t, store, types.TypeLook, map[string]any{
		"id": "l1", "title": "Weekly Revenue", "folder_id": "f1", "model": "sales_old",
	})
	seedPayload(t, store, types.TypeDashboard, dashboardPayload())
}

func unpackTo(t *testing.T, e *Engine, strategy Strategy) (string, *UnpackResult) {
	t.Helper()
	dir := t.TempDir()
	res, err := e.Unpack(context.Background(), UnpackOptions{OutputDir: dir, Strategy: strategy})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	return dir, res
}

// editFiles rewrites every content file containing old and returns how
// many files changed.
func editFiles(t *testing.T, dir, old, new string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".yaml") {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if !strings.Contains(string(data), old) {
			return nil
		}
		n++
		return os.WriteFile(p, []byte(strings.ReplaceAll(string(data), old, new)), 0o644)
	})
	if err != nil {
		t.Fatalf("edit files: %v", err)
	}
	return n
}

func readManifest(t *testing.T, dir string) *exportMetadata {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	meta := &exportMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return meta
}

func contentBytes(t *testing.T, store *sqlite.Store) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, ct := range types.AllContentTypes() {
		items, err := store.ListContent(context.Background(), ct, types.ContentFilter{})
		if err != nil {
			t.Fatalf("list %s: %v", ct, err)
		}
		for _, item := range items {
			out[string(ct)+"/"+item.ID] = item.ContentData
		}
	}
	return out
}

func decodeRow(t *testing.T, store *sqlite.Store, ct types.ContentType, id string) map[string]any {
	t.Helper()
	item, err := store.GetContent(context.Background(), ct, id)
	if err != nil {
		t.Fatalf("get %s %s: %v", ct, id, err)
	}
	payload, err := codec.Decode(item.ContentData)
	if err != nil {
		t.Fatalf("decode %s %s: %v", ct, id, err)
	}
	return payload
}

func TestUnpackFullLayoutAndManifest(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	dir, res := unpackTo(t, New(store, nil), StrategyFull)

	if res.TotalItems != 4 {
		t.Errorf("total = %d, want 4", res.TotalItems)
	}
	for _, rel := range []string{
		"user/u1.yaml", "folder/f1.yaml", "look/l1.yaml", "dashboard/d1.yaml",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	manifest := readManifest(t, dir)
	if manifest.Version != "1.0" || manifest.Strategy != StrategyFull {
		t.Errorf("manifest header = %+v", manifest)
	}
	if manifest.TotalItems != 4 || manifest.ContentCounts["LOOK"] != 1 {
		t.Errorf("manifest counts = %+v", manifest)
	}
	if manifest.DatabaseSchemaVersion <= 0 {
		t.Errorf("schema version = %d", manifest.DatabaseSchemaVersion)
	}

	// The stored checksum must be reproducible from the tree: every
	// content file's bytes concatenated in sorted path order.
	var rels []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".yaml") {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(rels)
	h := codec.NewChecksumHash()
	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		h.Write(data)
	}
	if got := codec.FormatChecksum(h); got != manifest.Checksum {
		t.Errorf("recomputed checksum = %s, want %s", got, manifest.Checksum)
	}
}

func TestUnpackPackRoundTripUnchanged(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	before := contentBytes(t, store)
	res, err := e.Pack(context.Background(), PackOptions{InputDir: dir})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Unchanged != 4 || res.Modified != 0 || res.New != 0 || res.QueriesCreated != 0 {
		t.Errorf("result = %+v", res)
	}

	after := contentBytes(t, store)
	if len(after) != len(before) {
		t.Fatalf("row count changed: %d -> %d", len(before), len(after))
	}
	for key, data := range before {
		if !bytes.Equal(after[key], data) {
			t.Errorf("content bytes of %s changed", key)
		}
	}
}

func TestPackCosmeticEditIsUnchanged(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	path := filepath.Join(dir, "look", "l1.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(path, append([]byte("# reviewed 2026-08-10\n"), data...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := e.Pack(context.Background(), PackOptions{InputDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Unchanged != 4 || res.Modified != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestPackModifiedLookPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	orig, err := store.GetContent(ctx, types.TypeLook, "l1")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if n := editFiles(t, dir, "Weekly Revenue", "Monthly Revenue"); n != 1 {
		t.Fatalf("edited %d files, want 1", n)
	}

	dry, err := e.Pack(ctx, PackOptions{InputDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.Modified != 1 || dry.Unchanged != 3 {
		t.Errorf("dry run result = %+v", dry)
	}
	if got := decodeRow(t, store, types.TypeLook, "l1")["title"]; got != "Weekly Revenue" {
		t.Errorf("dry run wrote: title = %v", got)
	}

	res, err := e.Pack(ctx, PackOptions{InputDir: dir})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Modified != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := decodeRow(t, store, types.TypeLook, "l1")["title"]; got != "Monthly Revenue" {
		t.Errorf("title = %v, want Monthly Revenue", got)
	}

	updated, err := store.GetContent(ctx, types.TypeLook, "l1")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !updated.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", orig.CreatedAt, updated.CreatedAt)
	}
}

func TestPackValidationAggregatesAndBlocksWrites(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	before := contentBytes(t, store)
	if err := os.WriteFile(filepath.Join(dir, "look", "l1.yaml"), []byte("a: [b\n"), 0o644); err != nil {
		t.Fatalf("corrupt look: %v", err)
	}
	// Extend the user file's metadata block with a key outside the schema.
	userPath := filepath.Join(dir, "user", "u1.yaml")
	data, err := os.ReadFile(userPath)
	if err != nil {
		t.Fatalf("read user: %v", err)
	}
	if err := os.WriteFile(userPath, append(data, []byte("    surprise: true\n")...), 0o644); err != nil {
		t.Fatalf("extend user: %v", err)
	}

	_, err = e.Pack(context.Background(), PackOptions{InputDir: dir})
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if len(verrs.Files) != 2 {
		t.Fatalf("errors = %v, want 2", verrs.Files)
	}
	if verrs.Files[0].Path != "look/l1.yaml" || verrs.Files[1].Path != "user/u1.yaml" {
		t.Errorf("paths = %s, %s", verrs.Files[0].Path, verrs.Files[1].Path)
	}
	if !strings.Contains(verrs.Files[1].Err.Error(), "unknown _metadata key") {
		t.Errorf("user error = %v", verrs.Files[1].Err)
	}

	after := contentBytes(t, store)
	for key, data := range before {
		if !bytes.Equal(after[key], data) {
			t.Errorf("content bytes of %s changed despite validation failure", key)
		}
	}
}

func TestPackRejectsDuplicateIDs(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	data, err := os.ReadFile(filepath.Join(dir, "look", "l1.yaml"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "look", "copy.yaml"), data, 0o644); err != nil {
		t.Fatalf("copy: %v", err)
	}

	_, err = e.Pack(context.Background(), PackOptions{InputDir: dir})
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if len(verrs.Files) != 1 || !strings.Contains(verrs.Files[0].Err.Error(), "duplicate") {
		t.Errorf("errors = %v", verrs.Files)
	}
	// The copy sorts first, so the original is the one flagged.
	if verrs.Files[0].Path != "look/l1.yaml" {
		t.Errorf("flagged path = %s", verrs.Files[0].Path)
	}
}

func TestPackRejectsIDMismatch(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	if n := editFiles(t, dir, "\nid: u1\n", "\nid: u9\n"); n != 1 {
		t.Fatalf("edited %d files, want 1", n)
	}
	_, err := e.Pack(context.Background(), PackOptions{InputDir: dir})
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if !strings.Contains(verrs.Files[0].Err.Error(), "does not match db_id") {
		t.Errorf("err = %v", verrs.Files[0].Err)
	}
}

func TestPackRejectsUnknownElementType(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	if n := editFiles(t, dir, "type: vis", "type: pie"); n != 1 {
		t.Fatalf("edited %d files, want 1", n)
	}
	_, err := e.Pack(context.Background(), PackOptions{InputDir: dir})
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if !strings.Contains(verrs.Files[0].Err.Error(), `unknown type "pie"`) {
		t.Errorf("err = %v", verrs.Files[0].Err)
	}
}

func TestPackSchemaVersionMismatch(t *testing.T) {
	store := testStore(t)
	seedFixture(t, store)
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFull)

	manifest := readManifest(t, dir)
	manifest.DatabaseSchemaVersion++
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err = e.Pack(context.Background(), PackOptions{InputDir: dir})
	if err == nil || !strings.Contains(err.Error(), "schema version") {
		t.Errorf("err = %v, want schema version mismatch", err)
	}
}

func TestPackRemapsModifiedDashboardQueries(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedFixture(t, store)
	fake := looker.NewFake()
	e := New(store, fake)
	dir, _ := unpackTo(t, e, StrategyFull)

	// The look and the dashboard both reference the old model name.
	if n := editFiles(t, dir, "sales_old", "sales_new"); n != 2 {
		t.Fatalf("edited %d files, want 2", n)
	}

	res, err := e.Pack(ctx, PackOptions{InputDir: dir})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Modified != 2 || res.QueriesCreated != 1 {
		t.Errorf("result = %+v", res)
	}
	// Both elements carry the same query, so one create serves both.
	if fake.Calls("create_query") != 1 || fake.QueryCount() != 1 {
		t.Errorf("create_query calls = %d, queries = %d", fake.Calls("create_query"), fake.QueryCount())
	}

	payload := decodeRow(t, store, types.TypeDashboard, "d1")
	elements := payload["dashboard_elements"].([]any)
	e1 := elements[0].(map[string]any)
	e2 := elements[1].(map[string]any)
	e3 := elements[2].(map[string]any)
	if e1["query_id"] == "q1" || e1["query_id"] != e2["query_id"] {
		t.Errorf("query ids = %v, %v", e1["query_id"], e2["query_id"])
	}
	if _, ok := e3["query_id"]; ok {
		t.Error("look element gained a query_id")
	}

	state, err := os.ReadFile(filepath.Join(dir, stateDir, remapFile))
	if err != nil {
		t.Fatalf("read remap state: %v", err)
	}
	var saved remapState
	if err := json.Unmarshal(state, &saved); err != nil {
		t.Fatalf("parse remap state: %v", err)
	}
	if len(saved.Queries) != 1 {
		t.Errorf("saved queries = %v", saved.Queries)
	}
}

func TestPackDryRunPlansRemapWithoutWrites(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedFixture(t, store)
	fake := looker.NewFake()
	e := New(store, fake)
	dir, _ := unpackTo(t, e, StrategyFull)

	editFiles(t, dir, "sales_old", "sales_new")
	before := contentBytes(t, store)

	res, err := e.Pack(ctx, PackOptions{InputDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.QueriesCreated != 1 || res.Modified != 2 {
		t.Errorf("result = %+v", res)
	}
	if fake.Calls("create_query") != 0 {
		t.Errorf("dry run created %d queries", fake.Calls("create_query"))
	}
	if _, err := os.Stat(filepath.Join(dir, stateDir)); !os.IsNotExist(err) {
		t.Errorf("dry run wrote %s", stateDir)
	}
	after := contentBytes(t, store)
	for key, data := range before {
		if !bytes.Equal(after[key], data) {
			t.Errorf("dry run changed content bytes of %s", key)
		}
	}
}

func TestPackForceDeleteScopedToExportedTypes(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedFixture(t, store)
	seedPayload(t, store, types.TypeLook, map[string]any{
		"id": "l2", "title": "Churn", "folder_id": "f1",
	})
	e := New(store, nil)
	dir, _ := unpackTo(t, e, StrategyFolder)

	if err := os.Remove(filepath.Join(dir, "Sales", "Churn.yaml")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	res, err := e.Pack(ctx, PackOptions{InputDir: dir, Force: true})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Deleted != 1 || res.Unchanged != 2 {
		t.Errorf("result = %+v", res)
	}

	l2, err := store.GetContent(ctx, types.TypeLook, "l2")
	if err != nil {
		t.Fatalf("GetContent l2: %v", err)
	}
	if !l2.Deleted {
		t.Error("l2 not marked deleted")
	}
	// Users and folders were not part of the export, so force leaves them.
	for _, probe := range []struct {
		ct types.ContentType
		id string
	}{
		{types.TypeUser, "u1"},
		{types.TypeFolder, "f1"},
	} {
		item, err := store.GetContent(ctx, probe.ct, probe.id)
		if err != nil {
			t.Fatalf("GetContent %s: %v", probe.id, err)
		}
		if item.Deleted {
			t.Errorf("%s %s deleted by folder-scoped pack", probe.ct, probe.id)
		}
	}
}

func TestUnpackFolderLayout(t *testing.T) {
	store := testStore(t)
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "f1", "name": "Sales"})
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "f2", "name": "Regional", "parent_id": "f1"})
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "f3", "name": "Regional", "parent_id": "f1"})
	seedPayload(t, store, types.TypeLook, map[string]any{"id": "l1", "title": "Utilization", "folder_id": "f2"})
	seedPayload(t, store, types.TypeLook, map[string]any{"id": "l9", "title": "Lost", "folder_id": "ghost"})
	seedPayload(t, store, types.TypeDashboard, dashboardPayload())

	dir, res := unpackTo(t, New(store, nil), StrategyFolder)
	if res.TotalItems != 3 || res.Counts[types.TypeLook] != 2 || res.Counts[types.TypeDashboard] != 1 {
		t.Errorf("result = %+v", res)
	}

	for _, rel := range []string{
		"Sales/Regional/Utilization.yaml",
		"Sales/Executive Summary.yaml",
		"_orphaned/Lost.yaml",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if info, err := os.Stat(filepath.Join(dir, "Sales", "Regional (2)")); err != nil || !info.IsDir() {
		t.Errorf("sibling collision dir missing: %v", err)
	}

	manifest := readManifest(t, dir)
	if manifest.Strategy != StrategyFolder {
		t.Errorf("strategy = %s", manifest.Strategy)
	}
	if got := manifest.FolderMap["f3"].Path; got != "Sales/Regional (2)" {
		t.Errorf("f3 path = %q", got)
	}
	if manifest.FolderMap["f1"].ChildCount != 2 || manifest.FolderMap["f2"].Depth != 1 {
		t.Errorf("folder map = %+v", manifest.FolderMap)
	}
	if manifest.FolderMap["f1"].ID != "f1" {
		t.Errorf("folder map entry id = %q", manifest.FolderMap["f1"].ID)
	}
}

func TestUnpackFolderCycleFails(t *testing.T) {
	store := testStore(t)
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "fa", "name": "A", "parent_id": "fb"})
	seedPayload(t, store, types.TypeFolder, map[string]any{"id": "fb", "name": "B", "parent_id": "fa"})

	_, err := New(store, nil).Unpack(context.Background(), UnpackOptions{
		OutputDir: t.TempDir(),
		Strategy:  StrategyFolder,
	})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cerr.Path) != 2 {
		t.Errorf("cycle = %v", cerr.Path)
	}
}

func TestUnpackRejectsUnknownStrategy(t *testing.T) {
	store := testStore(t)
	_, err := New(store, nil).Unpack(context.Background(), UnpackOptions{
		OutputDir: t.TempDir(),
		Strategy:  Strategy("zip"),
	})
	if err == nil || !strings.Contains(err.Error(), "unknown strategy") {
		t.Errorf("err = %v", err)
	}
}

// txCounterStore counts transactions and can fail the n-th one.
type txCounterStore struct {
	*sqlite.Store
	mu     sync.Mutex
	calls  int
	failOn int
}

func (s *txCounterStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.failOn != 0 && n == s.failOn {
		return errors.New("simulated commit failure")
	}
	return s.Store.RunInTransaction(ctx, fn)
}

func seedManyLooks(t *testing.T, store *sqlite.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		seedPayload(t, store, types.TypeLook, map[string]any{
			"id":    fmt.Sprintf("%04d", i),
			"title": fmt.Sprintf("metric %04d", i),
		})
	}
}

func TestPackBatchesWrites(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedManyLooks(t, store, 250)
	counter := &txCounterStore{Store: store}
	e := New(counter, nil)

	dir, _ := unpackTo(t, e, StrategyFull)
	if n := editFiles(t, dir, "metric", "kpi"); n != 250 {
		t.Fatalf("edited %d files, want 250", n)
	}

	res, err := e.Pack(ctx, PackOptions{InputDir: dir})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Modified != 250 {
		t.Errorf("modified = %d", res.Modified)
	}
	if counter.calls != 3 {
		t.Errorf("transactions = %d, want 3", counter.calls)
	}
}

func TestPackCommitFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	seedManyLooks(t, store, 250)
	counter := &txCounterStore{Store: store, failOn: 2}
	e := New(counter, nil)

	dir, _ := unpackTo(t, e, StrategyFull)
	editFiles(t, dir, "metric", "kpi")

	_, err := e.Pack(ctx, PackOptions{InputDir: dir})
	if !errors.Is(err, ErrCommit) {
		t.Fatalf("err = %v, want ErrCommit", err)
	}
	if !strings.Contains(err.Error(), "commit batch 2") {
		t.Errorf("err = %v", err)
	}

	// Batch 1 committed, batches 2 and 3 did not.
	items, err := store.ListContent(ctx, types.TypeLook, types.ContentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	updated := 0
	for _, item := range items {
		payload, err := codec.Decode(item.ContentData)
		if err != nil {
			t.Fatalf("decode %s: %v", item.ID, err)
		}
		if strings.HasPrefix(payload["title"].(string), "kpi") {
			updated++
		}
	}
	if updated != 100 {
		t.Errorf("updated rows = %d, want 100", updated)
	}
}
