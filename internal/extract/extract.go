package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/metrics"
	"github.com/z3z1ma/lookervault-sub000/internal/ratelimit"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// Options configures an extraction session.
type Options struct {
	Workers            int
	PageSize           int
	CheckpointInterval int
	MaxRetries         int
	FolderIDs          []string // folder scope for dashboards/looks; in-memory filter elsewhere
	SessionID          string   // non-empty resumes an interrupted session
}

// withDefaults fills unset options with the documented defaults.
func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 8
	}
	if o.PageSize < 1 {
		o.PageSize = 100
	}
	if o.CheckpointInterval < 1 {
		o.CheckpointInterval = 100
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	return o
}

// TypeResult summarizes one content type's pass.
type TypeResult struct {
	ContentType types.ContentType `json:"content_type"`
	Extracted   int               `json:"extracted"`
	Skipped     int               `json:"skipped"` // excluded by a resume checkpoint
	Failed      int               `json:"failed"`
}

// typeCounters is the workers' shared view of a TypeResult. Workers only
// increment; runType folds the totals into the result after the pool
// drains.
type typeCounters struct {
	extracted atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func (tc *typeCounters) fold(tr *TypeResult) {
	tr.Extracted = int(tc.extracted.Load())
	tr.Skipped = int(tc.skipped.Load())
	tr.Failed = int(tc.failed.Load())
}

// Result summarizes an extraction session.
type Result struct {
	SessionID string        `json:"session_id"`
	Types     []*TypeResult `json:"types"`
	Extracted int           `json:"extracted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator drives extraction sessions. One orchestrator serves one
// session at a time; the limiter and metrics aggregator it carries are
// session-scoped.
type Orchestrator struct {
	store   storage.Store
	client  looker.Client
	limiter *ratelimit.Limiter
	metrics *metrics.Session
}

// New assembles an orchestrator around its collaborators.
func New(store storage.Store, client looker.Client, limiter *ratelimit.Limiter, agg *metrics.Session) *Orchestrator {
	if agg == nil {
		agg = metrics.NewSession()
	}
	return &Orchestrator{store: store, client: client, limiter: limiter, metrics: agg}
}

// Metrics exposes the session aggregator for progress reporting.
func (o *Orchestrator) Metrics() *metrics.Session {
	return o.metrics
}

// Run extracts every requested content type. Paginated types fan out to
// a worker pool claiming disjoint offset windows; the rest run a single
// sequential pass. The session row moves pending → running → terminal,
// and a checkpoint per type makes interruption resumable.
func (o *Orchestrator) Run(ctx context.Context, contentTypes []types.ContentType, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	session, resuming, err := o.openSession(ctx, contentTypes, opts)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"session": session.ID, "workers": opts.Workers})
	if resuming {
		logger.Info("resuming extraction session")
	} else {
		logger.Info("starting extraction session")
	}

	session.Status = types.StatusRunning
	if err := o.store.UpdateExtractionSession(ctx, session); err != nil {
		return nil, fmt.Errorf("mark session running: %w", err)
	}

	result := &Result{SessionID: session.ID}
	var runErr error
	for _, ct := range contentTypes {
		tr, err := o.runType(ctx, session.ID, ct, opts, resuming)
		if tr != nil {
			result.Types = append(result.Types, tr)
			result.Extracted += tr.Extracted
			result.Failed += tr.Failed
		}
		if err != nil {
			runErr = err
			break
		}
	}
	result.Duration = time.Since(start)

	o.closeSession(ctx, session, result, runErr)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// openSession creates a fresh session row or reloads the one being
// resumed.
func (o *Orchestrator) openSession(ctx context.Context, contentTypes []types.ContentType, opts Options) (*types.ExtractionSession, bool, error) {
	if opts.SessionID != "" {
		session, err := o.store.GetExtractionSession(ctx, opts.SessionID)
		if err != nil {
			return nil, false, fmt.Errorf("load session %s: %w", opts.SessionID, err)
		}
		if session.Status.Terminal() && session.Status != types.StatusCancelled && session.Status != types.StatusFailed {
			return nil, false, fmt.Errorf("session %s already %s", session.ID, session.Status)
		}
		return session, true, nil
	}

	cfg, err := json.Marshal(map[string]any{
		"content_types":       contentTypes,
		"workers":             opts.Workers,
		"page_size":           opts.PageSize,
		"checkpoint_interval": opts.CheckpointInterval,
		"max_retries":         opts.MaxRetries,
		"folder_ids":          opts.FolderIDs,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal session config: %w", err)
	}

	session := &types.ExtractionSession{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    types.StatusPending,
		Config:    cfg,
	}
	if err := o.store.CreateExtractionSession(ctx, session); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	return session, false, nil
}

// closeSession writes the terminal session row. Cancellation and failure
// both land here; checkpoint flushes already happened in runType.
func (o *Orchestrator) closeSession(ctx context.Context, session *types.ExtractionSession, result *Result, runErr error) {
	// The session row outlives a cancelled context.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		session.Status = types.StatusCompleted
	case errors.Is(runErr, context.Canceled):
		session.Status = types.StatusCancelled
	default:
		session.Status = types.StatusFailed
	}
	now := time.Now().UTC()
	session.CompletedAt = &now
	snap := o.metrics.Snapshot()
	session.TotalItems = int(snap.Processed)
	session.SuccessCount = int(snap.Succeeded)
	session.ErrorCount = int(snap.Failed)
	if meta, err := json.Marshal(snap); err == nil {
		session.Metadata = meta
	}

	if err := o.store.UpdateExtractionSession(saveCtx, session); err != nil {
		log.WithFields(log.Fields{"session": session.ID, "error": err}).Error("failed to finalize session row")
	}
	log.WithFields(log.Fields{
		"session":   session.ID,
		"status":    session.Status,
		"extracted": result.Extracted,
		"failed":    result.Failed,
		"duration":  result.Duration.Round(time.Millisecond),
	}).Info("extraction session finished")
}

// runType extracts one content type to completion.
func (o *Orchestrator) runType(ctx context.Context, sessionID string, ct types.ContentType, opts Options, resuming bool) (*TypeResult, error) {
	if !ct.IsValid() {
		return nil, fmt.Errorf("unknown content type %q", ct)
	}

	logger := log.WithFields(log.Fields{"session": sessionID, "content_type": ct})

	var prior *types.Checkpoint
	if resuming {
		cp, err := o.store.GetLatestExtractionCheckpoint(ctx, ct, sessionID)
		switch {
		case err == nil && !cp.Complete():
			prior = cp
			logger.WithFields(log.Fields{
				"completed": len(cp.Data.CompletedIDs),
			}).Info("resuming from checkpoint")
		case err == nil && cp.Complete():
			logger.Info("type already complete, skipping")
			return &TypeResult{ContentType: ct, Skipped: cp.ItemCount}, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load checkpoint for %s: %w", ct, err)
		}
	}

	cps := newCheckpointState(o.store, sessionID, ct, opts.CheckpointInterval, prior)
	tr := &TypeResult{ContentType: ct}
	tc := &typeCounters{}

	var err error
	if ct.Paginated() && opts.Workers > 1 {
		err = o.runParallel(ctx, ct, opts, cps, tc)
	} else {
		err = o.runSequential(ctx, ct, opts, cps, tc)
	}
	tc.fold(tr)

	if err != nil {
		// Flush progress so a cancelled or failed run resumes where it
		// stopped. A flush failure is secondary to the original error.
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if ferr := cps.flush(flushCtx); ferr != nil {
			logger.WithField("error", ferr).Warn("checkpoint flush failed during shutdown")
		}
		cancel()
		return tr, err
	}

	if err := cps.complete(ctx); err != nil {
		return tr, fmt.Errorf("finalize checkpoint for %s: %w", ct, err)
	}
	logger.WithFields(log.Fields{
		"extracted": tr.Extracted,
		"skipped":   tr.Skipped,
		"failed":    tr.Failed,
	}).Info("content type extracted")
	return tr, nil
}

// folderFilters expands the folder scope into per-folder list filters for
// types the API filters server-side. Everything else gets one unfiltered
// pass and the in-memory filter applies downstream.
func folderFilters(ct types.ContentType, folderIDs []string) []looker.ListFilter {
	if len(folderIDs) == 0 || !ct.FolderFilterable() {
		return []looker.ListFilter{{}}
	}
	filters := make([]looker.ListFilter, 0, len(folderIDs))
	for _, fid := range folderIDs {
		filters = append(filters, looker.ListFilter{FolderID: fid})
	}
	return filters
}

// runParallel fans a type out to a worker pool over disjoint offset
// windows. With a folder scope, dashboards and looks run one pass per
// folder so the API filters server-side.
func (o *Orchestrator) runParallel(ctx context.Context, ct types.ContentType, opts Options, cps *checkpointState, tc *typeCounters) error {
	for _, filter := range filtersWithResume(ct, opts, cps) {
		coord := NewCoordinator(opts.PageSize)
		if filter.seed > 0 {
			coord.Seed(filter.seed)
		}

		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < opts.Workers; w++ {
			g.Go(func() error {
				return o.worker(gctx, ct, filter.filter, coord, opts, cps, tc)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// runSequential pages through a type with a single worker. Types the API
// cannot folder-filter apply the folder scope in memory.
func (o *Orchestrator) runSequential(ctx context.Context, ct types.ContentType, opts Options, cps *checkpointState, tc *typeCounters) error {
	for _, filter := range filtersWithResume(ct, opts, cps) {
		coord := NewCoordinator(opts.PageSize)
		if filter.seed > 0 {
			coord.Seed(filter.seed)
		}
		if err := o.worker(ctx, ct, filter.filter, coord, opts, cps, tc); err != nil {
			return err
		}
	}
	return nil
}

type filterPass struct {
	filter looker.ListFilter
	seed   int
}

// filtersWithResume pairs each list filter with its resume offset. Offsets
// are only trustworthy for the single unfiltered pass; folder passes rely
// on the completed-ID exclusion set instead.
func filtersWithResume(ct types.ContentType, opts Options, cps *checkpointState) []filterPass {
	filters := folderFilters(ct, opts.FolderIDs)
	passes := make([]filterPass, 0, len(filters))
	for _, f := range filters {
		p := filterPass{filter: f}
		if f.FolderID == "" {
			p.seed = cps.resumeOffset()
		}
		passes = append(passes, p)
	}
	return passes
}

// worker claims windows until end-of-stream, fetching under rate-limiter
// admission and persisting each page's items.
func (o *Orchestrator) worker(ctx context.Context, ct types.ContentType, filter looker.ListFilter, coord *Coordinator, opts Options, cps *checkpointState, tc *typeCounters) error {
	folderSet := make(map[string]struct{}, len(opts.FolderIDs))
	if !ct.FolderFilterable() {
		for _, fid := range opts.FolderIDs {
			folderSet[fid] = struct{}{}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset, ok := coord.Claim()
		if !ok {
			return nil
		}

		page, hasMore, err := o.fetchPage(ctx, ct, filter, offset, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if looker.IsAuth(err) {
				return fmt.Errorf("extracting %s: %w", ct, err)
			}
			// A window lost to a permanent error is logged and skipped;
			// the rest of the stream is still worth extracting.
			log.WithFields(log.Fields{
				"content_type": ct,
				"offset":       offset,
				"error":        err,
			}).Warn("page fetch failed, window skipped")
			cps.addError(1)
			o.metrics.AddFailed(1)
			tc.failed.Add(1)
			continue
		}

		if len(page) == 0 {
			coord.MarkEnd()
			return nil
		}
		if !hasMore || len(page) < opts.PageSize {
			coord.MarkEnd()
		}
		cps.observeOffset(offset + len(page))

		o.processPage(ctx, ct, page, folderSet, cps, tc)
	}
}

// fetchPage lists one window under limiter admission, retrying transient
// failures with jittered exponential backoff. A rate-limit signal slows
// every worker down before the retry.
func (o *Orchestrator) fetchPage(ctx context.Context, ct types.ContentType, filter looker.ListFilter, offset int, opts Options) ([]map[string]any, bool, error) {
	var (
		page    []map[string]any
		hasMore bool
	)
	operation := func() error {
		if err := o.limiter.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		page, hasMore, err = o.client.List(ctx, ct, filter, offset, opts.PageSize)
		if err != nil {
			return o.classifyForRetry(err)
		}
		o.limiter.ReportSuccess()
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(newRetryBackoff(opts.MaxRetries), ctx))
	return page, hasMore, err
}

// classifyForRetry routes an API error into the retry machinery: transient
// kinds retry, rate limiting additionally slows the shared limiter, and
// everything else is permanent.
func (o *Orchestrator) classifyForRetry(err error) error {
	switch {
	case looker.IsRateLimited(err):
		o.limiter.ReportRateLimited()
		o.metrics.AddRetried(1)
		return err
	case looker.IsTransient(err):
		o.metrics.AddRetried(1)
		return err
	default:
		return backoff.Permanent(err)
	}
}

// processPage encodes and persists one page of payloads. Items excluded
// by a resume checkpoint are skipped; per-item failures are dropped from
// the page and counted, never fatal.
func (o *Orchestrator) processPage(ctx context.Context, ct types.ContentType, page []map[string]any, folderSet map[string]struct{}, cps *checkpointState, tc *typeCounters) {
	for _, payload := range page {
		if ctx.Err() != nil {
			return
		}
		if !matchesFolders(payload, folderSet) {
			continue
		}

		item, err := codec.ItemFromPayload(ct, payload)
		if err != nil {
			log.WithFields(log.Fields{"content_type": ct, "error": err}).Warn("item dropped")
			cps.addError(1)
			o.metrics.AddProcessed(1)
			o.metrics.AddFailed(1)
			tc.failed.Add(1)
			continue
		}
		if cps.has(item.ID) {
			tc.skipped.Add(1)
			continue
		}

		if err := o.store.SaveContent(ctx, item); err != nil {
			log.WithFields(log.Fields{
				"content_type": ct,
				"id":           item.ID,
				"error":        err,
			}).Warn("content save failed, item dropped")
			cps.addError(1)
			o.metrics.AddProcessed(1)
			o.metrics.AddFailed(1)
			tc.failed.Add(1)
			continue
		}

		o.metrics.AddProcessed(1)
		o.metrics.AddSucceeded(1)
		o.metrics.AddBytes(item.ContentSize)
		tc.extracted.Add(1)
		if err := cps.record(ctx, item.ID); err != nil {
			log.WithFields(log.Fields{"content_type": ct, "error": err}).Warn("checkpoint write failed")
		}
	}
}

// newRetryBackoff builds the per-operation retry schedule. BackOff
// instances are stateful; always construct a fresh one.
func newRetryBackoff(maxRetries int) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // bounded by retry count, not wall clock
	return backoff.WithMaxRetries(bo, uint64(maxRetries))
}
