package pack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// stateDir holds pack bookkeeping inside an export tree; its contents are
// never treated as content files.
const stateDir = ".pack_state"

// remapFile is the advisory record of query IDs created by past packs.
const remapFile = "query_remapping.json"

// remapTable deduplicates query creation within one pack run: every
// distinct canonical query hash maps to exactly one created query ID no
// matter how many dashboard elements carry it.
type remapTable struct {
	client  looker.Client
	created map[string]string
}

func newRemapTable(client looker.Client) *remapTable {
	return &remapTable{client: client, created: make(map[string]string)}
}

// size reports how many distinct queries this run created, or would
// create in a dry run.
func (t *remapTable) size() int {
	return len(t.created)
}

// remapDashboard rewrites query_id on every element whose embedded query
// no longer hashes to what the repository holds for that element. The
// baseline comes from the stored copy of the dashboard, matched by element
// id; an element with no stored counterpart counts as a new query.
func (t *remapTable) remapDashboard(ctx context.Context, f *packedFile, dryRun bool) error {
	baseline, err := elementQueryHashes(f.orig)
	if err != nil {
		return fmt.Errorf("%s: %w", f.rel, err)
	}

	elements, _ := f.payload["dashboard_elements"].([]any)
	for i, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		query, ok := el["query"].(map[string]any)
		if !ok {
			continue
		}
		hash, err := codec.CanonicalQueryHash(query)
		if err != nil {
			return fmt.Errorf("%s element %d: %w", f.rel, i, err)
		}

		elID, _ := codec.StringField(el, "id")
		if elID != "" && baseline[elID] == hash {
			continue
		}
		id, err := t.queryID(ctx, hash, query, dryRun)
		if err != nil {
			return fmt.Errorf("%s element %d: %w", f.rel, i, err)
		}
		if id != "" {
			el["query_id"] = id
		}
	}
	return nil
}

// queryID returns the run-wide query ID for a hash, creating the query on
// first sight. Dry runs record the hash without creating anything.
func (t *remapTable) queryID(ctx context.Context, hash string, query map[string]any, dryRun bool) (string, error) {
	if id, ok := t.created[hash]; ok {
		return id, nil
	}
	if dryRun {
		t.created[hash] = ""
		return "", nil
	}
	if t.client == nil {
		return "", fmt.Errorf("query remapping needs a Looker client")
	}
	id, err := t.client.CreateQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("create query: %w", err)
	}
	t.created[hash] = id
	return id, nil
}

// elementQueryHashes computes the canonical hash of each embedded element
// query in the stored copy of a dashboard, keyed by element id. A nil
// item (dashboard absent from the repository) has no baseline.
func elementQueryHashes(orig *types.ContentItem) (map[string]string, error) {
	if orig == nil {
		return nil, nil
	}
	payload, err := codec.Decode(orig.ContentData)
	if err != nil {
		return nil, fmt.Errorf("decode stored copy: %w", err)
	}
	hashes := make(map[string]string)
	elements, _ := payload["dashboard_elements"].([]any)
	for _, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		query, ok := el["query"].(map[string]any)
		if !ok {
			continue
		}
		id, ok := codec.StringField(el, "id")
		if !ok {
			continue
		}
		hash, err := codec.CanonicalQueryHash(query)
		if err != nil {
			return nil, err
		}
		hashes[id] = hash
	}
	return hashes, nil
}

// remapState is the query_remapping.json schema.
type remapState struct {
	UpdatedAt string            `json:"updated_at"`
	Queries   map[string]string `json:"queries"`
}

// persist merges this run's remapping into the side file. The file is
// advisory; a corrupt one is replaced rather than failing the pack.
func (t *remapTable) persist(root string) error {
	dir := filepath.Join(root, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, remapFile)

	state := remapState{Queries: make(map[string]string)}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &state)
		if state.Queries == nil {
			state.Queries = make(map[string]string)
		}
	}
	for hash, id := range t.created {
		if id != "" {
			state.Queries[hash] = id
		}
	}
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return writeJSONAtomic(path, state)
}
