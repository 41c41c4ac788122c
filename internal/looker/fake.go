package looker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// Verify Fake implements Client at compile time
var _ Client = (*Fake)(nil)

// Fake is an in-memory Client for tests. It serves seeded items in stable
// order, assigns sequential IDs on create, records every call, and can
// inject one error per request number. Safe for concurrent use, matching
// how orchestrator workers share a client.
type Fake struct {
	mu      sync.Mutex
	items   map[types.ContentType]map[string]map[string]any
	order   map[types.ContentType][]string
	queries map[string]map[string]any
	nextID  int

	requests    int
	failAt      map[int]error
	callCounts  map[string]int
	listOffsets map[types.ContentType][]int
	createLog   []CreateRecord
}

// CreateRecord is one Create call in arrival order.
type CreateRecord struct {
	ContentType types.ContentType
	ID          string
}

// NewFake returns an empty fake client.
func NewFake() *Fake {
	return &Fake{
		items:       make(map[types.ContentType]map[string]map[string]any),
		order:       make(map[types.ContentType][]string),
		queries:     make(map[string]map[string]any),
		nextID:      1000,
		failAt:      make(map[int]error),
		callCounts:  make(map[string]int),
		listOffsets: make(map[types.ContentType][]int),
	}
}

// Seed loads items for a content type. Each payload must carry an "id".
func (f *Fake) Seed(ct types.ContentType, payloads []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items[ct] == nil {
		f.items[ct] = make(map[string]map[string]any)
	}
	for _, p := range payloads {
		id := fmt.Sprint(p["id"])
		if _, exists := f.items[ct][id]; !exists {
			f.order[ct] = append(f.order[ct], id)
		}
		f.items[ct][id] = p
	}
}

// FailRequest injects err on the n-th request (1-based, counted across all
// operations). The failure fires once; the retry sees normal behavior.
func (f *Fake) FailRequest(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[n] = err
}

// Calls returns how many times op ("list", "get", "exists", "create",
// "update", "create_query", "me", "versions") was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCounts[op]
}

// ListedOffsets returns every offset List was called with for a type.
func (f *Fake) ListedOffsets(ct types.ContentType) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.listOffsets[ct]))
	copy(out, f.listOffsets[ct])
	return out
}

// CreateLog returns every Create call in arrival order.
func (f *Fake) CreateLog() []CreateRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CreateRecord, len(f.createLog))
	copy(out, f.createLog)
	return out
}

// Item returns the stored payload, or nil.
func (f *Fake) Item(ct types.ContentType, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[ct][id]
}

// Count returns how many items of a type the fake holds.
func (f *Fake) Count(ct types.ContentType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[ct])
}

// QueryCount returns how many standalone queries were created.
func (f *Fake) QueryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// admit counts the request and fires any injected failure. Caller holds
// f.mu.
func (f *Fake) admit(op string) error {
	f.requests++
	f.callCounts[op]++
	if err, ok := f.failAt[f.requests]; ok {
		delete(f.failAt, f.requests)
		return err
	}
	return nil
}

// List serves one page from the seeded order.
func (f *Fake) List(ctx context.Context, ct types.ContentType, filter ListFilter, offset, limit int) ([]map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("list"); err != nil {
		return nil, false, err
	}
	f.listOffsets[ct] = append(f.listOffsets[ct], offset)

	ids := f.order[ct]
	if filter.FolderID != "" {
		filtered := make([]string, 0, len(ids))
		for _, id := range ids {
			if fmt.Sprint(f.items[ct][id]["folder_id"]) == filter.FolderID {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}

	if offset >= len(ids) {
		return nil, false, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]map[string]any, 0, end-offset)
	for _, id := range ids[offset:end] {
		page = append(page, cloneMap(f.items[ct][id]))
	}
	return page, end-offset == limit, nil
}

// Get returns a seeded item or ErrNotFound.
func (f *Fake) Get(ctx context.Context, ct types.ContentType, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("get"); err != nil {
		return nil, err
	}
	item, ok := f.items[ct][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", ct, id, ErrNotFound)
	}
	return cloneMap(item), nil
}

// Exists reports whether the item is present.
func (f *Fake) Exists(ctx context.Context, ct types.ContentType, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("exists"); err != nil {
		return false, err
	}
	_, ok := f.items[ct][id]
	return ok, nil
}

// Create stores the payload under a fresh destination ID.
func (f *Fake) Create(ctx context.Context, ct types.ContentType, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("create"); err != nil {
		return "", err
	}

	f.nextID++
	id := strconv.Itoa(f.nextID)
	stored := cloneMap(payload)
	stored["id"] = id
	if f.items[ct] == nil {
		f.items[ct] = make(map[string]map[string]any)
	}
	f.items[ct][id] = stored
	f.order[ct] = append(f.order[ct], id)
	f.createLog = append(f.createLog, CreateRecord{ContentType: ct, ID: id})
	return id, nil
}

// Update replaces an existing item or returns ErrNotFound.
func (f *Fake) Update(ctx context.Context, ct types.ContentType, id string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("update"); err != nil {
		return err
	}
	if _, ok := f.items[ct][id]; !ok {
		return fmt.Errorf("update %s/%s: %w", ct, id, ErrNotFound)
	}
	stored := cloneMap(payload)
	stored["id"] = id
	f.items[ct][id] = stored
	return nil
}

// CreateQuery stores a standalone query under a fresh ID.
func (f *Fake) CreateQuery(ctx context.Context, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("create_query"); err != nil {
		return "", err
	}
	f.nextID++
	id := strconv.Itoa(f.nextID)
	stored := cloneMap(payload)
	stored["id"] = id
	f.queries[id] = stored
	return id, nil
}

// Me returns a static probe user.
func (f *Fake) Me(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("me"); err != nil {
		return nil, err
	}
	return map[string]any{"id": "1", "display_name": "Fake Operator"}, nil
}

// Versions returns a static version document.
func (f *Fake) Versions(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.admit("versions"); err != nil {
		return nil, err
	}
	return map[string]any{"current_version": map[string]any{"version": "4.0"}}, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
