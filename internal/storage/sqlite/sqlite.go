// Package sqlite implements the storage interface using SQLite.
//
// The package is split into focused files:
//
// Core components:
//   - store.go: Store struct, New() constructor, WASM cache setup, and
//     database utility methods (Close, Path, SchemaVersion)
//   - content.go: content item CRUD (SaveContent, SaveContentBatch,
//     GetContent, ListContent, CountContent, MarkContentDeleted)
//   - sessions.go: extraction and restoration session rows
//   - checkpoints.go: extraction and restoration checkpoints, upserted on
//     their (session, content type, started_at) natural key
//   - dlq.go: the dead-letter queue for restoration failures
//   - mappings.go: source-to-destination ID mappings for cross-instance
//     restoration
//
// Supporting components:
//   - schema.go: database schema definitions
//   - migrate.go + migrations/: schema version upgrades
//   - transaction.go: RunInTransaction and the Tx implementation
//   - errors.go: error wrapping (sql.ErrNoRows to storage.ErrNotFound,
//     lock contention to storage.ErrBusy)
//   - util.go: busy retry, null column converters
//
// All writes go through withBusyRetry or BEGIN IMMEDIATE transactions, so
// concurrent workers queue on the write lock instead of surfacing
// SQLITE_BUSY to callers.
package sqlite
