package restore

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// deadLetter captures a terminal failure with its kind, message, and the
// original payload so an operator can retry or repair by hand. A capture
// failure is logged, never fatal; the run keeps going.
func (o *Orchestrator) deadLetter(sessionID string, item *types.ContentItem, cause error, kind types.ErrorKind, retryCount int) {
	dlq := &types.DeadLetterItem{
		SessionID:    sessionID,
		ContentID:    item.ID,
		ContentType:  item.ContentType,
		ContentData:  item.ContentData,
		ErrorMessage: cause.Error(),
		ErrorType:    kind,
		RetryCount:   retryCount,
		FailedAt:     time.Now().UTC(),
	}
	// DLQ rows survive the cancelled context that caused the failure.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.SaveDLQItem(saveCtx, dlq); err != nil {
		log.WithFields(log.Fields{
			"session":      sessionID,
			"content_type": item.ContentType,
			"id":           item.ID,
			"error":        err,
		}).Error("failed to dead-letter item")
		return
	}
	o.metrics.AddDeadLettered(1)
	log.WithFields(log.Fields{
		"session":      sessionID,
		"content_type": item.ContentType,
		"id":           item.ID,
		"kind":         kind,
	}).Warn("item dead-lettered")
}

// DLQRetryResult summarizes a dead-letter retry pass.
type DLQRetryResult struct {
	Attempted int                        `json:"attempted"`
	Succeeded int                        `json:"succeeded"`
	Failed    int                        `json:"failed"`
	Results   []*types.RestorationResult `json:"results"`
}

// ListDLQ returns dead-letter entries matching the filter, newest first.
func (o *Orchestrator) ListDLQ(ctx context.Context, filter types.DLQFilter) ([]*types.DeadLetterItem, error) {
	return o.store.ListDLQ(ctx, filter)
}

// ShowDLQ returns one dead-letter entry by row ID.
func (o *Orchestrator) ShowDLQ(ctx context.Context, id int64) (*types.DeadLetterItem, error) {
	return o.store.GetDLQItem(ctx, id)
}

// ClearDLQ deletes a session's dead-letter entries (or all entries when
// sessionID is empty) and returns how many were removed.
func (o *Orchestrator) ClearDLQ(ctx context.Context, sessionID string) (int, error) {
	return o.store.ClearDLQ(ctx, sessionID)
}

// RetryDLQItem re-drives one dead-lettered item through the per-item
// pipeline under its original session. Success deletes the row; another
// terminal failure re-saves it with the retry count bumped.
func (o *Orchestrator) RetryDLQItem(ctx context.Context, id int64, opts Options) (*types.RestorationResult, error) {
	opts = opts.withDefaults()

	dlq, err := o.store.GetDLQItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load dead-letter item %d: %w", id, err)
	}
	sess, err := o.store.GetRestorationSession(ctx, dlq.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", dlq.SessionID, err)
	}

	item := &types.ContentItem{
		ID:          dlq.ContentID,
		ContentType: dlq.ContentType,
		ContentData: dlq.ContentData,
	}
	result := o.restoreItem(ctx, sess, item, opts)
	if result.Err == nil {
		if err := o.store.DeleteDLQItem(ctx, id); err != nil {
			return result, fmt.Errorf("remove dead-letter item %d: %w", id, err)
		}
		return result, nil
	}

	kind := classify(result.Err)
	if kind != types.KindCancelled {
		o.deadLetter(dlq.SessionID, item, result.Err, kind, dlq.RetryCount+1)
	}
	return result, nil
}

// RetryDLQ re-drives every dead-letter entry matching the filter.
func (o *Orchestrator) RetryDLQ(ctx context.Context, filter types.DLQFilter, opts Options) (*DLQRetryResult, error) {
	entries, err := o.store.ListDLQ(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := &DLQRetryResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		result, err := o.RetryDLQItem(ctx, entry.ID, opts)
		if err != nil {
			return out, err
		}
		out.Attempted++
		out.Results = append(out.Results, result)
		if result.Err == nil {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out, nil
}
