package extract

import (
	"context"
	"sync"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// checkpointState accumulates per-type progress across all workers and
// flushes it to the repository every interval items. One instance exists
// per (session, content type) pass; its StartedAt stays fixed so every
// flush upserts the same checkpoint row.
type checkpointState struct {
	store    storage.Store
	interval int

	// flushMu serializes snapshot+save so concurrent flushes cannot land
	// out of order. Always acquired before mu; never held while only
	// mutating counters.
	flushMu sync.Mutex

	mu         sync.Mutex
	cp         types.Checkpoint
	completed  map[string]struct{}
	sinceFlush int
}

// newCheckpointState starts tracking for a type. When resuming, prior is
// the loaded checkpoint; its completed IDs seed the exclusion set and its
// StartedAt is reused so the same row keeps growing.
func newCheckpointState(store storage.Store, sessionID string, ct types.ContentType, interval int, prior *types.Checkpoint) *checkpointState {
	cs := &checkpointState{
		store:    store,
		interval: interval,
		cp: types.Checkpoint{
			SessionID:   sessionID,
			ContentType: ct,
			StartedAt:   time.Now().UTC(),
		},
		completed: make(map[string]struct{}),
	}
	if prior != nil {
		cs.cp.StartedAt = prior.StartedAt
		cs.cp.Data = types.CheckpointData{
			CompletedIDs: append([]string(nil), prior.Data.CompletedIDs...),
			LastOffset:   prior.Data.LastOffset,
		}
		cs.cp.ItemCount = prior.ItemCount
		cs.cp.ErrorCount = prior.ErrorCount
		for _, id := range prior.Data.CompletedIDs {
			cs.completed[id] = struct{}{}
		}
	}
	return cs
}

// has reports whether the item completed in a prior run and must not be
// re-extracted.
func (c *checkpointState) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completed[id]
	return ok
}

// record marks one item complete and flushes when the aggregate count
// crosses the checkpoint interval. Flush failures are returned so callers
// can log them; progress tracking continues regardless.
func (c *checkpointState) record(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, dup := c.completed[id]; dup {
		c.mu.Unlock()
		return nil
	}
	c.completed[id] = struct{}{}
	c.cp.Data.CompletedIDs = append(c.cp.Data.CompletedIDs, id)
	c.cp.ItemCount++
	c.sinceFlush++
	flush := c.sinceFlush >= c.interval
	if flush {
		c.sinceFlush = 0
	}
	c.mu.Unlock()

	if !flush {
		return nil
	}
	return c.save(ctx)
}

// save snapshots and persists under the flush mutex. The snapshot is taken
// while flushMu is held, so a flush that waited on an earlier one always
// persists a state at least as new as what that earlier flush wrote; the
// completed_ids of the stored row never shrink.
func (c *checkpointState) save(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.mu.Lock()
	cp := c.snapshotLocked()
	c.mu.Unlock()
	return c.store.SaveExtractionCheckpoint(ctx, &cp)
}

// observeOffset advances last_offset to the highest fully-fetched window.
func (c *checkpointState) observeOffset(offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cp.Data.LastOffset == nil || offset > *c.cp.Data.LastOffset {
		c.cp.Data.LastOffset = &offset
	}
}

// addError counts a failed item into the checkpoint row.
func (c *checkpointState) addError(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cp.ErrorCount += n
}

// flush persists the current state unconditionally (cancellation path).
func (c *checkpointState) flush(ctx context.Context) error {
	c.mu.Lock()
	c.sinceFlush = 0
	c.mu.Unlock()
	return c.save(ctx)
}

// complete marks the type drained and persists the final row.
func (c *checkpointState) complete(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now().UTC()
	c.cp.CompletedAt = &now
	c.mu.Unlock()
	return c.save(ctx)
}

// count returns how many items this pass recorded (including resumed).
func (c *checkpointState) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cp.ItemCount
}

// resumeOffset reports where a resumed pass should restart paging, or 0
// for a fresh pass.
func (c *checkpointState) resumeOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cp.Data.LastOffset == nil {
		return 0
	}
	return *c.cp.Data.LastOffset
}

// snapshotLocked deep-copies the checkpoint for a race-free save. Caller
// holds c.mu.
func (c *checkpointState) snapshotLocked() types.Checkpoint {
	cp := c.cp
	cp.Data.CompletedIDs = append([]string(nil), c.cp.Data.CompletedIDs...)
	if c.cp.Data.LastOffset != nil {
		offset := *c.cp.Data.LastOffset
		cp.Data.LastOffset = &offset
	}
	return cp
}
