package restore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// runType restores one content type to completion: load the candidate
// items, dispatch them through the worker pool, and settle the type's
// checkpoint.
func (o *Orchestrator) runType(ctx context.Context, sess *types.RestorationSession, ct types.ContentType, opts Options, resuming bool) (*TypeSummary, error) {
	if ct.Rank() < 0 {
		return nil, fmt.Errorf("content type %q is not restorable", ct)
	}

	logger := log.WithFields(log.Fields{"session": sess.ID, "content_type": ct})

	var prior *types.Checkpoint
	if resuming {
		cp, err := o.store.GetLatestRestorationCheckpoint(ctx, ct, sess.ID)
		switch {
		case err == nil && cp.Complete():
			logger.Info("type already complete, skipping")
			return &TypeSummary{ContentType: ct, Skipped: cp.ItemCount}, nil
		case err == nil:
			prior = cp
			logger.WithField("completed", len(cp.Data.CompletedIDs)).Info("resuming from checkpoint")
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load checkpoint for %s: %w", ct, err)
		}
	}

	items, err := o.store.ListContent(ctx, ct, types.ContentFilter{FolderIDs: opts.FolderIDs})
	if err != nil {
		return nil, fmt.Errorf("list %s content: %w", ct, err)
	}
	if ct == types.TypeFolder {
		items = orderFolders(items)
	}

	checkpointStore := o.store
	if opts.DryRun {
		checkpointStore = nil // dry runs must not poison a later resume
	}
	prog := newProgress(checkpointStore, sess.ID, ct, opts.CheckpointInterval, prior)

	counts := &tally{}
	err = o.dispatch(ctx, sess, ct, items, opts, prog, counts)
	summary := counts.summary(ct)

	if err != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if ferr := prog.flush(flushCtx); ferr != nil {
			logger.WithField("error", ferr).Warn("checkpoint flush failed during shutdown")
		}
		cancel()
		return summary, err
	}

	if err := prog.complete(ctx); err != nil {
		return summary, fmt.Errorf("finalize checkpoint for %s: %w", ct, err)
	}
	logger.WithFields(log.Fields{
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("content type restored")
	return summary, nil
}

// dispatch feeds items through a bounded work channel into the worker
// pool. Folders run single-file in parent-before-child order so parent
// mappings exist when children translate; every other type fans out.
func (o *Orchestrator) dispatch(ctx context.Context, sess *types.RestorationSession, ct types.ContentType, items []*types.ContentItem, opts Options, prog *progress, counts *tally) error {
	workers := opts.Workers
	if ct == types.TypeFolder {
		workers = 1
	}

	work := make(chan *types.ContentItem, workers*2)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(work)
		for _, item := range items {
			select {
			case work <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for item := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				if prog.has(item.ID) {
					counts.skip()
					continue
				}

				result := o.restoreItem(gctx, sess, item, opts)
				if result.Err == nil {
					counts.add(result.Action)
					if err := prog.record(gctx, item.ID); err != nil {
						log.WithFields(log.Fields{"content_type": ct, "error": err}).Warn("checkpoint write failed")
					}
					continue
				}

				kind := classify(result.Err)
				switch kind {
				case types.KindCancelled:
					return result.Err
				case types.KindAuth:
					return fmt.Errorf("restoring %s: %w", ct, result.Err)
				}

				counts.fail()
				prog.addError(1)
				if !opts.DryRun {
					o.deadLetter(sess.ID, item, result.Err, kind, 0)
					counts.deadLetter()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// orderFolders sorts folders so every parent precedes its children. Roots
// (no parent, or a parent outside the set) come first; members of a
// parent cycle sort last and surface as dependency failures downstream.
func orderFolders(items []*types.ContentItem) []*types.ContentItem {
	byID := make(map[string]*types.ContentItem, len(items))
	children := make(map[string][]*types.ContentItem, len(items))
	var roots []*types.ContentItem
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, item := range items {
		if item.ParentID == nil || byID[*item.ParentID] == nil {
			roots = append(roots, item)
			continue
		}
		children[*item.ParentID] = append(children[*item.ParentID], item)
	}

	ordered := make([]*types.ContentItem, 0, len(items))
	visited := make(map[string]struct{}, len(items))
	queue := roots
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if _, dup := visited[item.ID]; dup {
			continue
		}
		visited[item.ID] = struct{}{}
		ordered = append(ordered, item)
		queue = append(queue, children[item.ID]...)
	}

	// Cycle members never reach the queue; keep them deterministic.
	var rest []*types.ContentItem
	for _, item := range items {
		if _, ok := visited[item.ID]; !ok {
			rest = append(rest, item)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
	return append(ordered, rest...)
}

// tally is the lock-guarded counter set behind a TypeSummary.
type tally struct {
	mu           sync.Mutex
	created      int
	updated      int
	skipped      int
	failed       int
	deadLettered int
}

func (t *tally) add(action types.RestoreAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch action {
	case types.ActionCreated:
		t.created++
	case types.ActionUpdated:
		t.updated++
	case types.ActionSkipped:
		t.skipped++
	}
}

func (t *tally) skip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
}

func (t *tally) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *tally) deadLetter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadLettered++
}

func (t *tally) summary(ct types.ContentType) *TypeSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &TypeSummary{
		ContentType:  ct,
		Created:      t.created,
		Updated:      t.updated,
		Skipped:      t.skipped,
		Failed:       t.failed,
		DeadLettered: t.deadLettered,
	}
}
