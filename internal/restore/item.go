package restore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// readOnlyKeys never go into a write call; the destination owns them.
var readOnlyKeys = []string{
	"can", "created_at", "updated_at", "last_updater_id", "last_accessed_at",
	"last_viewed_at", "view_count", "favorite_count", "content_metadata_id",
	"readonly", "url", "short_url", "public_url", "embed_url", "excel_file_url",
	"google_spreadsheet_formula", "image_embed_url",
}

// restoreItem drives one content item through the full per-item pipeline:
// decode, validate, translate, probe, then update or create. The write
// step retries transient failures; validation and dependency failures are
// terminal immediately. DryRun stops after the exists probe.
func (o *Orchestrator) restoreItem(ctx context.Context, sess *types.RestorationSession, item *types.ContentItem, opts Options) *types.RestorationResult {
	start := time.Now()
	result := &types.RestorationResult{
		ContentID:   item.ID,
		ContentType: item.ContentType,
	}
	defer func() {
		result.Duration = time.Since(start)
		o.observe(result)
	}()

	payload, err := codec.Decode(item.ContentData)
	if err != nil {
		result.Action = types.ActionFailed
		result.Err = &DeserializationError{ContentType: item.ContentType, ContentID: item.ID, Err: err}
		return result
	}
	if err := codec.ValidatePayload(item.ContentType, payload); err != nil {
		result.Action = types.ActionFailed
		result.Err = &DeserializationError{ContentType: item.ContentType, ContentID: item.ID, Err: err}
		return result
	}

	crossInstance := sess.SourceInstance != ""
	if crossInstance {
		if err := o.translatePayload(ctx, sess.SourceInstance, item.ContentType, item.ID, payload); err != nil {
			result.Action = types.ActionFailed
			result.Err = err
			return result
		}
	}

	targetID := item.ID
	if crossInstance {
		destID, err := o.store.GetDestinationID(ctx, sess.SourceInstance, item.ContentType, item.ID)
		switch {
		case err == nil:
			targetID = destID
		case errors.Is(err, storage.ErrNotFound):
			targetID = "" // never restored here before: create
		default:
			result.Action = types.ActionFailed
			result.Err = storeFailure(err)
			return result
		}
	}

	if err := o.applyItem(ctx, sess, item, payload, targetID, opts, result); err != nil {
		result.Action = types.ActionFailed
		result.Err = err
	}
	return result
}

// applyItem performs the probe/update/create steps under per-item retry.
// Each attempt waits for limiter admission; a rate-limit response slows
// every worker before the retry fires.
func (o *Orchestrator) applyItem(ctx context.Context, sess *types.RestorationSession, item *types.ContentItem, payload map[string]any, targetID string, opts Options, result *types.RestorationResult) error {
	write := writeModel(payload)

	operation := func() error {
		result.Attempts++
		if err := o.limiter.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}

		exists := false
		if targetID != "" {
			var err error
			exists, err = o.client.Exists(ctx, item.ContentType, targetID)
			if err != nil {
				return o.retryOrPermanent(err)
			}
		}

		if opts.DryRun {
			// Probe only. Report what a real run would do.
			if exists {
				result.Action = types.ActionUpdated
				result.DestinationID = targetID
			} else {
				result.Action = types.ActionCreated
			}
			return nil
		}

		if exists {
			err := o.client.Update(ctx, item.ContentType, targetID, write)
			switch {
			case err == nil:
				result.Action = types.ActionUpdated
				result.DestinationID = targetID
				return nil
			case looker.IsNotFound(err):
				// Deleted between probe and write: fall through to create.
			default:
				return o.retryOrPermanent(err)
			}
		}

		newID, err := o.client.Create(ctx, item.ContentType, write)
		if err != nil {
			return o.retryOrPermanent(err)
		}
		result.Action = types.ActionCreated
		result.DestinationID = newID

		mapping := &types.IDMapping{
			SourceInstance: sess.SourceInstance,
			ContentType:    item.ContentType,
			SourceID:       item.ID,
			DestinationID:  newID,
			SessionID:      sess.ID,
		}
		if err := o.store.SaveIDMapping(ctx, mapping); err != nil {
			return backoff.Permanent(storeFailure(err))
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(newRetryBackoff(opts.MaxRetries), ctx))
	if err == nil {
		o.limiter.ReportSuccess()
	}
	return err
}

// retryOrPermanent routes an API error into the retry machinery.
func (o *Orchestrator) retryOrPermanent(err error) error {
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

// observe folds a finished result into the session metrics.
func (o *Orchestrator) observe(result *types.RestorationResult) {
	o.metrics.AddProcessed(1)
	if result.Err != nil {
		o.metrics.AddFailed(1)
		return
	}
	o.metrics.AddSucceeded(1)
}

// writeModel copies a payload without its read-only fields. Write calls
// must not echo server-owned attributes back; the id travels in the URL,
// never the body.
func writeModel(payload map[string]any) map[string]any {
	write := make(map[string]any, len(payload))
	for k, v := range payload {
		write[k] = v
	}
	delete(write, "id")
	for _, k := range readOnlyKeys {
		delete(write, k)
	}
	return write
}

// newRetryBackoff builds the per-item retry schedule. BackOff instances
// are stateful; always construct a fresh one.
func newRetryBackoff(maxRetries int) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // bounded by retry count, not wall clock
	return backoff.WithMaxRetries(bo, uint64(maxRetries))
}
