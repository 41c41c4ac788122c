// Package restore drives restoration of repository content back into a
// Looker instance: dependency-ordered bulk runs, per-item retry with
// rate-limiter admission, checkpoint-based resume, and a dead-letter
// queue for terminal failures.
package restore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/metrics"
	"github.com/z3z1ma/lookervault-sub000/internal/ratelimit"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// ErrForceRequired gates restore-all: it rewrites an entire instance, so
// the caller must acknowledge with force or run dry.
var ErrForceRequired = errors.New("restore: full restore requires force or dry-run")

// Options configures a restoration run.
type Options struct {
	Workers             int
	CheckpointInterval  int
	MaxRetries          int
	FolderIDs           []string
	DryRun              bool
	Force               bool
	SourceInstance      string // non-empty enables cross-instance ID translation
	DestinationInstance string
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 8
	}
	if o.CheckpointInterval < 1 {
		o.CheckpointInterval = 100
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	return o
}

// TypeSummary summarizes one content type's restoration.
type TypeSummary struct {
	ContentType  types.ContentType `json:"content_type"`
	Created      int               `json:"created"`
	Updated      int               `json:"updated"`
	Skipped      int               `json:"skipped"`
	Failed       int               `json:"failed"`
	DeadLettered int               `json:"dead_lettered"`
}

// Result summarizes a restoration session.
type Result struct {
	SessionID string         `json:"session_id"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Types     []*TypeSummary `json:"types"`
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Duration  time.Duration  `json:"duration"`
}

func (r *Result) fold(s *TypeSummary) {
	r.Types = append(r.Types, s)
	r.Created += s.Created
	r.Updated += s.Updated
	r.Skipped += s.Skipped
	r.Failed += s.Failed
}

// sessionConfig is persisted on the session row so resume can reconstruct
// the run's scope without the original command line.
type sessionConfig struct {
	ContentTypes       []types.ContentType `json:"content_types"`
	Workers            int                 `json:"workers"`
	CheckpointInterval int                 `json:"checkpoint_interval"`
	MaxRetries         int                 `json:"max_retries"`
	FolderIDs          []string            `json:"folder_ids,omitempty"`
	DryRun             bool                `json:"dry_run,omitempty"`
}

// Orchestrator drives restoration sessions against one destination. The
// limiter and metrics aggregator it carries are session-scoped.
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

// RestoreSingle restores one item by ID. The returned result carries the
// outcome even when the item fails; the error return is reserved for
// infrastructure failures (missing content, session bookkeeping).
func (o *Orchestrator) RestoreSingle(ctx context.Context, ct types.ContentType, id string, opts Options) (*types.RestorationResult, error) {
	opts = opts.withDefaults()

	item, err := o.store.GetContent(ctx, ct, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", ct, id, err)
	}

	sess, err := o.openSession(ctx, []types.ContentType{ct}, opts)
	if err != nil {
		return nil, err
	}
	sess.Status = types.StatusRunning
	if err := o.store.UpdateRestorationSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("mark session running: %w", err)
	}

	result := o.restoreItem(ctx, sess, item, opts)
	if result.Err != nil && !opts.DryRun {
		if kind := classify(result.Err); kind != types.KindCancelled {
			o.deadLetter(sess.ID, item, result.Err, kind, 0)
		}
	}

	summary := &Result{SessionID: sess.ID, DryRun: opts.DryRun}
	switch result.Action {
	case types.ActionCreated:
		summary.Created = 1
	case types.ActionUpdated:
		summary.Updated = 1
	}
	var runErr error
	if result.Err != nil {
		summary.Failed = 1
		runErr = result.Err
	}
	o.closeSession(ctx, sess, summary, runErr)
	return result, nil
}

// RestoreBulk restores every stored item of one content type.
func (o *Orchestrator) RestoreBulk(ctx context.Context, ct types.ContentType, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	sess, err := o.openSession(ctx, []types.ContentType{ct}, opts)
	if err != nil {
		return nil, err
	}
	return o.runTypes(ctx, sess, []types.ContentType{ct}, opts, false)
}

// RestoreAll restores every restorable content type in strict dependency
// order: a type never starts until every earlier type has terminated.
func (o *Orchestrator) RestoreAll(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if !opts.Force && !opts.DryRun {
		return nil, ErrForceRequired
	}

	order := types.RestorationOrder()
	sess, err := o.openSession(ctx, order, opts)
	if err != nil {
		return nil, err
	}
	return o.runTypes(ctx, sess, order, opts, false)
}

// Resume reloads an interrupted session's scope from its persisted config
// and re-dispatches, excluding everything its checkpoints recorded.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*Result, error) {
	sess, err := o.store.GetRestorationSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Status == types.StatusCompleted {
		return nil, fmt.Errorf("session %s already completed", sessionID)
	}

	var cfg sessionConfig
	if err := json.Unmarshal(sess.Config, &cfg); err != nil {
		return nil, fmt.Errorf("session %s has unreadable config: %w", sessionID, err)
	}
	opts := Options{
		Workers:             cfg.Workers,
		CheckpointInterval:  cfg.CheckpointInterval,
		MaxRetries:          cfg.MaxRetries,
		FolderIDs:           cfg.FolderIDs,
		DryRun:              cfg.DryRun,
		Force:               true, // acknowledged when the session was created
		SourceInstance:      sess.SourceInstance,
		DestinationInstance: sess.DestinationInstance,
	}.withDefaults()

	log.WithFields(log.Fields{"session": sess.ID, "types": len(cfg.ContentTypes)}).Info("resuming restoration session")
	return o.runTypes(ctx, sess, cfg.ContentTypes, opts, true)
}

// runTypes drives the per-type phases and settles the session row.
func (o *Orchestrator) runTypes(ctx context.Context, sess *types.RestorationSession, contentTypes []types.ContentType, opts Options, resuming bool) (*Result, error) {
	start := time.Now()
	sess.Status = types.StatusRunning
	if err := o.store.UpdateRestorationSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("mark session running: %w", err)
	}

	result := &Result{SessionID: sess.ID, DryRun: opts.DryRun}
	var runErr error
	for _, ct := range contentTypes {
		summary, err := o.runType(ctx, sess, ct, opts, resuming)
		if summary != nil {
			result.fold(summary)
		}
		if err != nil {
			runErr = err
			break
		}
	}
	result.Duration = time.Since(start)

	o.closeSession(ctx, sess, result, runErr)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// openSession creates the session row in pending state.
func (o *Orchestrator) openSession(ctx context.Context, contentTypes []types.ContentType, opts Options) (*types.RestorationSession, error) {
	cfg, err := json.Marshal(sessionConfig{
		ContentTypes:       contentTypes,
		Workers:            opts.Workers,
		CheckpointInterval: opts.CheckpointInterval,
		MaxRetries:         opts.MaxRetries,
		FolderIDs:          opts.FolderIDs,
		DryRun:             opts.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session config: %w", err)
	}

	sess := &types.RestorationSession{
		ID:                  uuid.NewString(),
		StartedAt:           time.Now().UTC(),
		Status:              types.StatusPending,
		SourceInstance:      opts.SourceInstance,
		DestinationInstance: opts.DestinationInstance,
		Config:              cfg,
	}
	if err := o.store.CreateRestorationSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// closeSession writes the terminal session row.
func (o *Orchestrator) closeSession(ctx context.Context, sess *types.RestorationSession, result *Result, runErr error) {
	// The session row outlives a cancelled context.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		sess.Status = types.StatusCompleted
	case errors.Is(runErr, context.Canceled):
		sess.Status = types.StatusCancelled
	default:
		sess.Status = types.StatusFailed
	}
	now := time.Now().UTC()
	sess.CompletedAt = &now
	snap := o.metrics.Snapshot()
	sess.TotalItems = int(snap.Processed)
	sess.SuccessCount = int(snap.Succeeded)
	sess.ErrorCount = int(snap.Failed)
	if meta, err := json.Marshal(snap); err == nil {
		sess.Metadata = meta
	}

	if err := o.store.UpdateRestorationSession(saveCtx, sess); err != nil {
		log.WithFields(log.Fields{"session": sess.ID, "error": err}).Error("failed to finalize session row")
	}
	log.WithFields(log.Fields{
		"session":  sess.ID,
		"status":   sess.Status,
		"created":  result.Created,
		"updated":  result.Updated,
		"failed":   result.Failed,
		"duration": result.Duration.Round(time.Millisecond),
	}).Info("restoration session finished")
}
