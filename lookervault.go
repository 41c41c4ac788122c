// Package lookervault provides a minimal public API for building custom
// tooling on top of a lookervault repository.
//
// Most one-off jobs should query the SQLite database directly. This
// package exports only the types and constructors needed by Go programs
// that want to read or write a repository through the storage layer
// programmatically.
package lookervault

import (
	"context"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/storage/sqlite"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// Core types for working with stored content.
type (
	ContentItem   = types.ContentItem
	ContentType   = types.ContentType
	ContentFilter = types.ContentFilter
)

// Content type constants.
const (
	TypeUser          = types.TypeUser
	TypeGroup         = types.TypeGroup
	TypeRole          = types.TypeRole
	TypePermissionSet = types.TypePermissionSet
	TypeModelSet      = types.TypeModelSet
	TypeFolder        = types.TypeFolder
	TypeLookMLModel   = types.TypeLookMLModel
	TypeLook          = types.TypeLook
	TypeDashboard     = types.TypeDashboard
	TypeBoard         = types.TypeBoard
	TypeScheduledPlan = types.TypeScheduledPlan
	TypeExplore       = types.TypeExplore
)

// Session and failure bookkeeping types.
type (
	ExtractionSession  = types.ExtractionSession
	RestorationSession = types.RestorationSession
	Checkpoint         = types.Checkpoint
	DeadLetterItem     = types.DeadLetterItem
	DLQFilter          = types.DLQFilter
)

// Store is the repository interface. All methods are safe for concurrent
// use.
type Store = storage.Store

// Sentinel errors for classification with errors.Is.
var (
	ErrNotFound = storage.ErrNotFound
	ErrBusy     = storage.ErrBusy
)

// Open opens (creating if necessary) the repository database at path.
// The special path ":memory:" opens a private in-memory repository.
func Open(ctx context.Context, path string) (Store, error) {
	return sqlite.New(ctx, path)
}

// AllContentTypes returns every supported content type in extraction
// order.
func AllContentTypes() []ContentType {
	return types.AllContentTypes()
}

// ParseContentType converts user input such as "dashboard" or
// "scheduled-plan" into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	return types.ParseContentType(s)
}
