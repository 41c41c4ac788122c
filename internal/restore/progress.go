package restore

import (
	"context"
	"sync"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// progress accumulates per-type completion across workers and flushes a
// checkpoint every interval successes. Dry runs carry a nil store and
// never persist. One instance exists per (session, content type) phase;
// its StartedAt stays fixed so every flush upserts the same row.
type progress struct {
	store    storage.Store
	interval int

	// flushMu serializes snapshot+save so concurrent flushes cannot land
	// out of order. Always acquired before mu.
	flushMu sync.Mutex

	mu         sync.Mutex
	cp         types.Checkpoint
	done       map[string]struct{}
	sinceFlush int
}

func newProgress(store storage.Store, sessionID string, ct types.ContentType, interval int, prior *types.Checkpoint) *progress {
	p := &progress{
		store:    store,
		interval: interval,
		cp: types.Checkpoint{
			SessionID:   sessionID,
			ContentType: ct,
			StartedAt:   time.Now().UTC(),
		},
		done: make(map[string]struct{}),
	}
	if prior != nil {
		p.cp.StartedAt = prior.StartedAt
		p.cp.Data.CompletedIDs = append([]string(nil), prior.Data.CompletedIDs...)
		p.cp.ItemCount = prior.ItemCount
		p.cp.ErrorCount = prior.ErrorCount
		for _, id := range prior.Data.CompletedIDs {
			p.done[id] = struct{}{}
		}
	}
	return p
}

// has reports whether the item completed in a prior run and must not be
// re-sent to the destination.
func (p *progress) has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[id]
	return ok
}

// record marks one item restored and flushes when the aggregate count
// crosses the interval.
func (p *progress) record(ctx context.Context, id string) error {
	p.mu.Lock()
	if _, dup := p.done[id]; dup {
		p.mu.Unlock()
		return nil
	}
	p.done[id] = struct{}{}
	p.cp.Data.CompletedIDs = append(p.cp.Data.CompletedIDs, id)
	p.cp.ItemCount++
	p.sinceFlush++
	flush := p.sinceFlush >= p.interval
	if flush {
		p.sinceFlush = 0
	}
	p.mu.Unlock()

	if !flush {
		return nil
	}
	return p.save(ctx)
}

// save snapshots and persists under the flush mutex. Taking the snapshot
// while flushMu is held means a flush that waited on an earlier one always
// writes a state at least as new as what that flush persisted, so the
// stored completed_ids never shrink.
func (p *progress) save(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	p.mu.Lock()
	cp := p.snapshotLocked()
	p.mu.Unlock()
	return p.store.SaveRestorationCheckpoint(ctx, &cp)
}

// addError counts a dead-lettered item into the checkpoint row.
func (p *progress) addError(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.ErrorCount += n
}

// flush persists the current state unconditionally (cancellation path).
func (p *progress) flush(ctx context.Context) error {
	p.mu.Lock()
	p.sinceFlush = 0
	p.mu.Unlock()
	return p.save(ctx)
}

// complete marks the type fully processed and persists the final row.
func (p *progress) complete(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now().UTC()
	p.cp.CompletedAt = &now
	p.mu.Unlock()
	return p.save(ctx)
}

// snapshotLocked deep-copies the checkpoint for a race-free save. Caller
// holds p.mu.
func (p *progress) snapshotLocked() types.Checkpoint {
	cp := p.cp
	cp.Data.CompletedIDs = append([]string(nil), p.cp.Data.CompletedIDs...)
	return cp
}
