package restore

import (
	"context"
	"errors"
	"fmt"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// DeserializationError means a stored payload could not be decoded or
// failed its type's required-field schema. Never retried.
type DeserializationError struct {
	ContentType types.ContentType
	ContentID   string
	Err         error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s %s: %v", e.ContentType, e.ContentID, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// DependencyError means a foreign-key reference could not be translated to
// a destination ID. The referenced item must restore first.
type DependencyError struct {
	ContentType types.ContentType
	ContentID   string
	Field       string
	RefType     types.ContentType
	RefID       string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("restore %s %s: no destination mapping for %s %q (field %s)",
		e.ContentType, e.ContentID, e.RefType, e.RefID, e.Field)
}

// storageFailure marks an error as coming from the repository rather than
// the API, so classification does not mistake it for a network failure.
type storageFailure struct{ err error }

func (e *storageFailure) Error() string { return e.err.Error() }
func (e *storageFailure) Unwrap() error { return e.err }

// storeFailure wraps a repository error for classification. nil passes
// through.
func storeFailure(err error) error {
	if err == nil {
		return nil
	}
	return &storageFailure{err: err}
}

// classify folds an error into the kind stored on DLQ rows and consulted
// by the retry layer.
func classify(err error) types.ErrorKind {
	if err == nil {
		return ""
	}
	var (
		deserr *DeserializationError
		deperr *DependencyError
		serr   *storageFailure
	)
	switch {
	case errors.Is(err, context.Canceled):
		return types.KindCancelled
	case errors.As(err, &deserr):
		return types.KindValidation
	case errors.As(err, &deperr):
		return types.KindDependency
	case errors.As(err, &serr):
		switch {
		case errors.Is(err, storage.ErrBusy):
			return types.KindTransient
		case errors.Is(err, storage.ErrNotFound):
			return types.KindNotFound
		default:
			return types.KindStorage
		}
	case looker.IsRateLimited(err):
		return types.KindRateLimited
	case looker.IsAuth(err):
		return types.KindAuth
	case looker.IsNotFound(err):
		return types.KindNotFound
	case looker.IsTransient(err):
		return types.KindTransient
	}
	return types.KindUnknown
}
