package restore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/metrics"
	"github.com/z3z1ma/lookervault-sub000/internal/ratelimit"
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

func openLimiter() *ratelimit.Limiter {
	return ratelimit.New(1_000_000, 100_000)
}

// contentItem builds a repository row from a payload the way extraction
// would have stored it.
func contentItem(t *testing.T, ct types.ContentType, payload map[string]any) *types.ContentItem {
	t.Helper()
	data, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	id, ok := codec.StringField(payload, "id")
	if !ok {
		t.Fatalf("payload has no id: %v", payload)
	}
	item := &types.ContentItem{
		ID:          id,
		ContentType: ct,
		Name:        codec.DisplayName(ct, payload),
		ContentData: data,
		ContentSize: int64(len(data)),
	}
	if p, ok := codec.StringField(payload, "parent_id"); ok {
		item.ParentID = &p
	}
	if f, ok := codec.StringField(payload, "folder_id"); ok {
		item.FolderID = &f
	}
	return item
}

func seedContent(t *testing.T, store *sqlite.Store, ct types.ContentType, payloads ...map[string]any) {
	t.Helper()
	for _, p := range payloads {
		if err := store.SaveContent(context.Background(), contentItem(t, ct, p)); err != nil {
			t.Fatalf("seed %s content: %v", ct, err)
		}
	}
}

func TestRestoreSingleCreatesAbsentItem(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook, map[string]any{"id": "l1", "title": "Weekly Revenue"})

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreSingle(ctx, types.TypeLook, "l1", Options{})
	if err != nil {
		t.Fatalf("RestoreSingle: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("restore failed: %v", result.Err)
	}
	if result.Action != types.ActionCreated {
		t.Errorf("action = %s, want created", result.Action)
	}
	if result.DestinationID == "" {
		t.Error("no destination id recorded")
	}

	stored := fake.Item(types.TypeLook, result.DestinationID)
	if stored == nil {
		t.Fatal("item not created at destination")
	}
	if stored["title"] != "Weekly Revenue" {
		t.Errorf("title = %v, want Weekly Revenue", stored["title"])
	}

	// Same-instance creates still record a mapping for traceability.
	destID, err := store.GetDestinationID(ctx, "", types.TypeLook, "l1")
	if err != nil {
		t.Fatalf("GetDestinationID: %v", err)
	}
	if destID != result.DestinationID {
		t.Errorf("mapping = %s, want %s", destID, result.DestinationID)
	}
}

func TestRestoreSingleUpdatesExistingItem(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	fake.Seed(types.TypeLook, []map[string]any{{"id": "l1", "title": "Stale"}})
	seedContent(t, store, types.TypeLook, map[string]any{"id": "l1", "title": "Fresh"})

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreSingle(ctx, types.TypeLook, "l1", Options{})
	if err != nil {
		t.Fatalf("RestoreSingle: %v", err)
	}
	if result.Action != types.ActionUpdated {
		t.Fatalf("action = %s, want updated", result.Action)
	}
	if got := fake.Item(types.TypeLook, "l1")["title"]; got != "Fresh" {
		t.Errorf("title = %v, want Fresh", got)
	}
	if fake.Count(types.TypeLook) != 1 {
		t.Errorf("destination count = %d, want 1 (no duplicate)", fake.Count(types.TypeLook))
	}

	// Idempotence: a second restore converges on the same state.
	again, err := orch.RestoreSingle(ctx, types.TypeLook, "l1", Options{})
	if err != nil {
		t.Fatalf("second RestoreSingle: %v", err)
	}
	if again.Action != types.ActionUpdated {
		t.Errorf("second action = %s, want updated", again.Action)
	}
	if fake.Count(types.TypeLook) != 1 {
		t.Errorf("destination count after second restore = %d, want 1", fake.Count(types.TypeLook))
	}
}

func TestRestoreSingleUpdateNotFoundFallsThroughToCreate(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	fake.Seed(types.TypeDashboard, []map[string]any{{"id": "d1", "title": "Old"}})
	seedContent(t, store, types.TypeDashboard, map[string]any{"id": "d1", "title": "New"})

	// Request order: exists probe, update (injected 404), create.
	fake.FailRequest(2, looker.ErrNotFound)

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreSingle(ctx, types.TypeDashboard, "d1", Options{})
	if err != nil {
		t.Fatalf("RestoreSingle: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("restore failed: %v", result.Err)
	}
	if result.Action != types.ActionCreated {
		t.Errorf("action = %s, want created after update 404", result.Action)
	}
	if got := fake.Calls("create"); got != 1 {
		t.Errorf("create called %d times, want 1", got)
	}
}

func TestRestoreSingleMissingContent(t *testing.T) {
	store := testStore(t)
	orch := New(store, looker.NewFake(), openLimiter(), metrics.NewSession())
	_, err := orch.RestoreSingle(context.Background(), types.TypeLook, "ghost", Options{})
	if err == nil {
		t.Fatal("RestoreSingle succeeded for absent content")
	}
}

func TestRestoreSingleDryRunNeverWrites(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook, map[string]any{"id": "l1", "title": "T"})

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreSingle(ctx, types.TypeLook, "l1", Options{DryRun: true})
	if err != nil {
		t.Fatalf("RestoreSingle: %v", err)
	}
	if result.Action != types.ActionCreated {
		t.Errorf("dry-run action = %s, want created (what a real run would do)", result.Action)
	}
	if fake.Calls("create") != 0 || fake.Calls("update") != 0 {
		t.Error("dry run issued writes")
	}
	if fake.Calls("exists") != 1 {
		t.Errorf("exists called %d times, want 1 (probe still runs)", fake.Calls("exists"))
	}
}

func TestRestoreBulkDeadLettersValidationFailure(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook,
		map[string]any{"id": "l1", "title": "Good"},
		map[string]any{"id": "l2"}, // missing required title
	)

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeLook, Options{Workers: 2})
	if err != nil {
		t.Fatalf("RestoreBulk: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}

	entries, err := store.ListDLQ(ctx, types.DLQFilter{SessionID: result.SessionID})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.ContentID != "l2" {
		t.Errorf("dlq content id = %s, want l2", entry.ContentID)
	}
	if entry.ErrorType != types.KindValidation {
		t.Errorf("dlq kind = %s, want validation", entry.ErrorType)
	}
	if entry.RetryCount != 0 {
		t.Errorf("dlq retry count = %d, want 0", entry.RetryCount)
	}
	if len(entry.ContentData) == 0 {
		t.Error("dlq entry lost the original payload")
	}
}

func TestRestoreBulkAbortsOnAuthError(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook, map[string]any{"id": "l1", "title": "T"})
	fake.FailRequest(1, looker.ErrAuth)

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeLook, Options{Workers: 2})
	if err == nil {
		t.Fatal("RestoreBulk succeeded, want auth error")
	}
	if !looker.IsAuth(err) {
		t.Fatalf("error = %v, want auth", err)
	}

	sess, err := store.GetRestorationSession(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("GetRestorationSession: %v", err)
	}
	if sess.Status != types.StatusFailed {
		t.Errorf("session status = %s, want failed", sess.Status)
	}
	entries, err := store.ListDLQ(ctx, types.DLQFilter{SessionID: result.SessionID})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("auth abort dead-lettered %d items, want 0", len(entries))
	}
}

func TestRestoreAllRequiresForce(t *testing.T) {
	store := testStore(t)
	orch := New(store, looker.NewFake(), openLimiter(), metrics.NewSession())
	_, err := orch.RestoreAll(context.Background(), Options{})
	if !errors.Is(err, ErrForceRequired) {
		t.Fatalf("error = %v, want ErrForceRequired", err)
	}
}

func TestRestoreAllDependencyOrder(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()

	// Folder chain fA -> fB -> fC; looks live in the folders; dashboards
	// reference the looks both top-level and through their elements.
	seedContent(t, store, types.TypeFolder,
		map[string]any{"id": "fA", "name": "Sales"},
		map[string]any{"id": "fB", "name": "Regional", "parent_id": "fA"},
		map[string]any{"id": "fC", "name": "EMEA", "parent_id": "fB"},
	)
	lookPayloads := make([]map[string]any, 0, 5)
	for i := 1; i <= 5; i++ {
		folder := []string{"fA", "fB", "fC"}[i%3]
		lookPayloads = append(lookPayloads, map[string]any{
			"id":        fmt.Sprintf("l%d", i),
			"title":     fmt.Sprintf("Look %d", i),
			"folder_id": folder,
			"user_id":   "99",
		})
	}
	seedContent(t, store, types.TypeLook, lookPayloads...)
	seedContent(t, store, types.TypeDashboard,
		map[string]any{
			"id": "d1", "title": "Overview", "folder_id": "fA",
			"look_ids": []any{"l1", "l2"},
			"dashboard_elements": []any{
				map[string]any{"id": "e1", "look_id": "l1", "type": "look"},
			},
		},
		map[string]any{
			"id": "d2", "title": "Deep Dive", "folder_id": "fC",
			"look_ids": []any{"l3"},
		},
	)

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreAll(ctx, Options{
		Workers:        4,
		Force:          true,
		SourceInstance: "https://src.example.com",
	})
	if err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	if result.Created != 10 {
		t.Fatalf("created = %d, want 10 (3 folders + 5 looks + 2 dashboards)", result.Created)
	}
	if result.Failed != 0 {
		t.Fatalf("failed = %d, want 0", result.Failed)
	}

	// Strict type ordering: ranks in the create log never decrease.
	lastRank := -1
	for _, rec := range fake.CreateLog() {
		rank := rec.ContentType.Rank()
		if rank < lastRank {
			t.Fatalf("create of %s after a later type (rank %d after %d)", rec.ContentType, rank, lastRank)
		}
		lastRank = rank
	}

	// Folder parents repointed along the chain.
	destFB, err := store.GetDestinationID(ctx, "https://src.example.com", types.TypeFolder, "fB")
	if err != nil {
		t.Fatalf("GetDestinationID fB: %v", err)
	}
	destFC, err := store.GetDestinationID(ctx, "https://src.example.com", types.TypeFolder, "fC")
	if err != nil {
		t.Fatalf("GetDestinationID fC: %v", err)
	}
	if got := fake.Item(types.TypeFolder, destFC)["parent_id"]; got != destFB {
		t.Errorf("fC parent = %v, want %s", got, destFB)
	}

	// Dashboard look references repointed to destination look IDs.
	destL1, err := store.GetDestinationID(ctx, "https://src.example.com", types.TypeLook, "l1")
	if err != nil {
		t.Fatalf("GetDestinationID l1: %v", err)
	}
	destD1, err := store.GetDestinationID(ctx, "https://src.example.com", types.TypeDashboard, "d1")
	if err != nil {
		t.Fatalf("GetDestinationID d1: %v", err)
	}
	d1 := fake.Item(types.TypeDashboard, destD1)
	lookIDs, _ := d1["look_ids"].([]any)
	if len(lookIDs) != 2 || lookIDs[0] != destL1 {
		t.Errorf("d1 look_ids = %v, want destination ids starting with %s", lookIDs, destL1)
	}
	elements, _ := d1["dashboard_elements"].([]any)
	if len(elements) != 1 {
		t.Fatalf("d1 elements = %d, want 1", len(elements))
	}
	if el := elements[0].(map[string]any); el["look_id"] != destL1 {
		t.Errorf("element look_id = %v, want %s", el["look_id"], destL1)
	}

	// Unmapped optional ownership is dropped, not invented.
	destL3, err := store.GetDestinationID(ctx, "https://src.example.com", types.TypeLook, "l3")
	if err != nil {
		t.Fatalf("GetDestinationID l3: %v", err)
	}
	if _, present := fake.Item(types.TypeLook, destL3)["user_id"]; present {
		t.Error("untranslatable user_id survived into the write model")
	}
}

func TestRestoreBulkCrossInstanceDependencyFailure(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook,
		map[string]any{"id": "l1", "title": "T", "folder_id": "f-missing"})

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeLook, Options{
		Workers:        1,
		SourceInstance: "https://src.example.com",
	})
	if err != nil {
		t.Fatalf("RestoreBulk: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Failed)
	}

	entries, err := store.ListDLQ(ctx, types.DLQFilter{SessionID: result.SessionID})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorType != types.KindDependency {
		t.Fatalf("dlq = %+v, want one dependency entry", entries)
	}

	// Once the folder mapping exists, a DLQ retry succeeds and clears the
	// entry.
	if err := store.SaveIDMapping(ctx, &types.IDMapping{
		SourceInstance: "https://src.example.com",
		ContentType:    types.TypeFolder,
		SourceID:       "f-missing",
		DestinationID:  "2001",
	}); err != nil {
		t.Fatalf("SaveIDMapping: %v", err)
	}
	fake.Seed(types.TypeFolder, []map[string]any{{"id": "2001", "name": "Landing"}})

	retried, err := orch.RetryDLQItem(ctx, entries[0].ID, Options{})
	if err != nil {
		t.Fatalf("RetryDLQItem: %v", err)
	}
	if retried.Err != nil {
		t.Fatalf("retry failed: %v", retried.Err)
	}
	if retried.Action != types.ActionCreated {
		t.Errorf("retry action = %s, want created", retried.Action)
	}

	remaining, err := store.ListDLQ(ctx, types.DLQFilter{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("dlq entries after successful retry = %d, want 0", len(remaining))
	}
}

func TestRetryDLQFailureBumpsRetryCount(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook,
		map[string]any{"id": "l1", "title": "T", "folder_id": "f-missing"})

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeLook, Options{
		Workers:        1,
		SourceInstance: "https://src.example.com",
	})
	if err != nil {
		t.Fatalf("RestoreBulk: %v", err)
	}

	entries, err := store.ListDLQ(ctx, types.DLQFilter{SessionID: result.SessionID})
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListDLQ = %v, %v; want one entry", entries, err)
	}

	// Mapping still missing: the retry fails again and re-captures with
	// the retry count bumped.
	retried, err := orch.RetryDLQItem(ctx, entries[0].ID, Options{})
	if err != nil {
		t.Fatalf("RetryDLQItem: %v", err)
	}
	if retried.Err == nil {
		t.Fatal("retry succeeded, want dependency failure")
	}

	after, err := store.ListDLQ(ctx, types.DLQFilter{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	var counts []int
	for _, e := range after {
		counts = append(counts, e.RetryCount)
	}
	if len(after) != 2 {
		t.Fatalf("dlq entries = %d (%v), want original plus bumped", len(after), counts)
	}
	found := false
	for _, e := range after {
		if e.RetryCount == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no entry with retry_count 1: %v", counts)
	}
}

// createCancellingClient cancels the run at the entry of the create call
// after the n-th, so the first n items land fully (create, mapping,
// checkpoint record) before the interruption.
type createCancellingClient struct {
	*looker.Fake
	cancel context.CancelFunc
	after  int

	mu    sync.Mutex
	calls int
}

func (c *createCancellingClient) Create(ctx context.Context, ct types.ContentType, payload map[string]any) (string, error) {
	c.mu.Lock()
	c.calls++
	if c.calls > c.after {
		c.cancel()
	}
	c.mu.Unlock()
	return c.Fake.Create(ctx, ct, payload)
}

func TestRestoreBulkResumeAfterCancel(t *testing.T) {
	store := testStore(t)
	fake := looker.NewFake()
	for i := 0; i < 50; i++ {
		seedContent(t, store, types.TypeDashboard, map[string]any{
			"id":    fmt.Sprintf("d-%03d", i),
			"title": fmt.Sprintf("Dashboard %d", i),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &createCancellingClient{Fake: fake, cancel: cancel, after: 20}

	orch := New(store, client, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeDashboard, Options{
		Workers:            1,
		CheckpointInterval: 5,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RestoreBulk error = %v, want context.Canceled", err)
	}

	background := context.Background()
	sess, err := store.GetRestorationSession(background, result.SessionID)
	if err != nil {
		t.Fatalf("GetRestorationSession: %v", err)
	}
	if sess.Status != types.StatusCancelled {
		t.Errorf("session status = %s, want cancelled", sess.Status)
	}

	cp, err := store.GetLatestRestorationCheckpoint(background, types.TypeDashboard, result.SessionID)
	if err != nil {
		t.Fatalf("GetLatestRestorationCheckpoint: %v", err)
	}
	if cp.ItemCount != 20 {
		t.Errorf("checkpoint captured %d items, want 20", cp.ItemCount)
	}
	if cp.Complete() {
		t.Error("interrupted checkpoint marked complete")
	}

	// Resume finishes the remainder without re-creating anything.
	orch2 := New(store, fake, openLimiter(), metrics.NewSession())
	resumed, err := orch2.Resume(background, result.SessionID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Skipped != 20 {
		t.Errorf("resumed skipped = %d, want 20", resumed.Skipped)
	}
	if resumed.Created != 30 {
		t.Errorf("resumed created = %d, want 30", resumed.Created)
	}
	if got := len(fake.CreateLog()); got != 50 {
		t.Errorf("total successful creates across runs = %d, want exactly 50 (no re-creates)", got)
	}
	if got := fake.Count(types.TypeDashboard); got != 50 {
		t.Errorf("destination count = %d, want 50 (no duplicates)", got)
	}

	final, err := store.GetRestorationSession(background, result.SessionID)
	if err != nil {
		t.Fatalf("GetRestorationSession: %v", err)
	}
	if final.Status != types.StatusCompleted {
		t.Errorf("final session status = %s, want completed", final.Status)
	}
}

func TestRestoreBulkDryRunWritesNoState(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	fake := looker.NewFake()
	seedContent(t, store, types.TypeLook,
		map[string]any{"id": "l1", "title": "A"},
		map[string]any{"id": "l2", "title": "B"},
	)

	orch := New(store, fake, openLimiter(), metrics.NewSession())
	result, err := orch.RestoreBulk(ctx, types.TypeLook, Options{Workers: 2, DryRun: true})
	if err != nil {
		t.Fatalf("RestoreBulk: %v", err)
	}
	if result.Created != 2 {
		t.Errorf("dry-run created = %d, want 2 (reported, not executed)", result.Created)
	}
	if fake.Calls("create") != 0 || fake.Calls("update") != 0 {
		t.Error("dry run issued writes")
	}

	cps, err := store.ListRestorationCheckpoints(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("ListRestorationCheckpoints: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("dry run persisted %d checkpoints, want 0", len(cps))
	}
}
