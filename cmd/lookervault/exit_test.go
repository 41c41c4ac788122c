package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/pack"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"pinned code wins", exitWith(exitConnection, errors.New("boom")), exitConnection},
		{"pinned code survives wrapping", fmt.Errorf("outer: %w", exitWith(exitValidation, errors.New("bad"))), exitValidation},
		{"cancelled", context.Canceled, exitInterrupted},
		{"wrapped cancelled", fmt.Errorf("extract: %w", context.Canceled), exitInterrupted},
		{"folder cycle", &pack.CycleError{Path: []string{"f1", "f2"}}, exitCycle},
		{"commit failure", fmt.Errorf("commit batch 3: %w: disk full", pack.ErrCommit), exitTransaction},
		{"invalid tree", &pack.ValidationErrors{Files: []pack.FileError{{Path: "a.yaml", Err: errors.New("no id")}}}, exitValidation},
		{"missing content", fmt.Errorf("dashboard 42: %w", storage.ErrNotFound), exitValidation},
		{"auth rejected", fmt.Errorf("list dashboards: %w", looker.ErrAuth), exitConnection},
		{"transport failure", &url.Error{Op: "Get", URL: "https://looker.example.com", Err: errors.New("refused")}, exitConnection},
		{"anything else", errors.New("mystery"), exitGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := exitWith(exitCycle, fmt.Errorf("wrap: %w", inner))
	if !errors.Is(err, inner) {
		t.Error("exitWith should preserve the error chain")
	}
	if err.Error() != "wrap: inner" {
		t.Errorf("Error() = %q", err.Error())
	}
}
