// Package storage defines the persistence contract for lookervault.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the Store interface, the transaction interface, and the sentinel
// errors referenced by both the implementation and its consumers (the
// extract and restore orchestrators, the pack engine, and cmd/lookervault).
package storage

import (
	"context"
	"errors"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBusy is returned when the store's write lock stayed contended past the
// bounded retry window. Callers may treat it as transient and retry.
var ErrBusy = errors.New("storage busy")

// Store is the interface satisfied by *sqlite.Store.
//
// Every mutating operation is an idempotent upsert on the row's natural
// uniqueness key. Columns whose values must survive re-runs are preserved
// on update: created_at for content items, started_at for sessions and
// checkpoints. All methods are safe for concurrent use.
type Store interface {
	// Content items
	SaveContent(ctx context.Context, item *types.ContentItem) error
	SaveContentBatch(ctx context.Context, items []*types.ContentItem) error
	GetContent(ctx context.Context, ct types.ContentType, id string) (*types.ContentItem, error)
	ListContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) ([]*types.ContentItem, error)
	CountContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) (int, error)
	MarkContentDeleted(ctx context.Context, ct types.ContentType, id string) error

	// Extraction sessions
	CreateExtractionSession(ctx context.Context, session *types.ExtractionSession) error
	UpdateExtractionSession(ctx context.Context, session *types.ExtractionSession) error
	GetExtractionSession(ctx context.Context, id string) (*types.ExtractionSession, error)
	ListExtractionSessions(ctx context.Context, limit int) ([]*types.ExtractionSession, error)

	// Restoration sessions. Deleting a session cascades to its checkpoints
	// and dead-letter items.
	CreateRestorationSession(ctx context.Context, session *types.RestorationSession) error
	UpdateRestorationSession(ctx context.Context, session *types.RestorationSession) error
	GetRestorationSession(ctx context.Context, id string) (*types.RestorationSession, error)
	ListRestorationSessions(ctx context.Context, limit int) ([]*types.RestorationSession, error)
	DeleteRestorationSession(ctx context.Context, id string) error

	// Checkpoints. Extraction and restoration checkpoints have parallel
	// schemas but live in separate tables keyed to their session kind.
	// GetLatest* with an empty sessionID returns the most recent checkpoint
	// for the content type across all sessions.
	SaveExtractionCheckpoint(ctx context.Context, cp *types.Checkpoint) error
	GetLatestExtractionCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error)
	ListExtractionCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error)
	SaveRestorationCheckpoint(ctx context.Context, cp *types.Checkpoint) error
	GetLatestRestorationCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error)
	ListRestorationCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error)

	// ID mappings
	SaveIDMapping(ctx context.Context, mapping *types.IDMapping) error
	GetDestinationID(ctx context.Context, sourceInstance string, ct types.ContentType, sourceID string) (string, error)

	// Dead-letter queue
	SaveDLQItem(ctx context.Context, item *types.DeadLetterItem) error
	ListDLQ(ctx context.Context, filter types.DLQFilter) ([]*types.DeadLetterItem, error)
	GetDLQItem(ctx context.Context, id int64) (*types.DeadLetterItem, error)
	DeleteDLQItem(ctx context.Context, id int64) error
	ClearDLQ(ctx context.Context, sessionID string) (int, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// Tx exposes the subset of storage operations that the pack engine batches
// inside a single immediate-mode transaction.
//
// All operations within the transaction share one database connection;
// changes are invisible to other connections until commit. An error return
// from the callback rolls the transaction back, as does a panic.
type Tx interface {
	SaveContent(ctx context.Context, item *types.ContentItem) error
	GetContent(ctx context.Context, ct types.ContentType, id string) (*types.ContentItem, error)
	MarkContentDeleted(ctx context.Context, ct types.ContentType, id string) error
}
