package main

import (
	"context"
	"errors"
	"net/url"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/pack"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

// Process exit codes. Scripts branch on these, so the mapping is part of
// the CLI contract.
const (
	exitGeneral     = 1   // unclassified failure
	exitValidation  = 2   // bad input: config, YAML, unknown type, missing content
	exitConnection  = 3   // cannot reach or authenticate with the Looker API
	exitCycle       = 4   // circular folder hierarchy in an export tree
	exitTransaction = 5   // pack write transaction failed
	exitInterrupted = 130 // cancelled by signal
)

// exitError pins a specific exit code to an error. Command code uses
// exitWith at sites where the classification is known; everything else
// falls through to exitCode's error-shape inspection.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode classifies err into a process exit code.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var cycle *pack.CycleError
	if errors.As(err, &cycle) {
		return exitCycle
	}
	if errors.Is(err, pack.ErrCommit) {
		return exitTransaction
	}
	var invalid *pack.ValidationErrors
	if errors.As(err, &invalid) {
		return exitValidation
	}
	if errors.Is(err, storage.ErrNotFound) {
		return exitValidation
	}
	if isConnectionError(err) {
		return exitConnection
	}
	return exitGeneral
}

// isConnectionError reports whether err means the Looker API is
// unreachable or rejecting our credentials, as opposed to rejecting a
// particular request.
func isConnectionError(err error) bool {
	if looker.IsAuth(err) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
