package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/z3z1ma/lookervault-sub000/internal/config"
	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/ratelimit"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// runFlags are the tuning knobs shared by extract and restore commands.
// Zero means "not set on the command line"; effective values fall back to
// the loaded config.
type runFlags struct {
	workers            int
	rateLimitPerMinute int
	rateLimitPerSecond int
	checkpointInterval int
	maxRetries         int
	folderIDs          []string
	recursive          bool
}

func (f *runFlags) register(fl *pflag.FlagSet) {
	fl.IntVar(&f.workers, "workers", 0, "concurrent workers (default from config)")
	fl.IntVar(&f.rateLimitPerMinute, "rate-limit-per-minute", 0, "API request budget per minute")
	fl.IntVar(&f.rateLimitPerSecond, "rate-limit-per-second", 0, "API request burst budget per second")
	fl.IntVar(&f.checkpointInterval, "checkpoint-interval", 0, "items between checkpoints")
	fl.IntVar(&f.maxRetries, "max-retries", 0, "retry attempts for transient failures")
}

func (f *runFlags) registerFolderFilter(fl *pflag.FlagSet) {
	fl.StringSliceVar(&f.folderIDs, "folder-ids", nil, "restrict dashboards and looks to these folder IDs")
	fl.BoolVar(&f.recursive, "recursive", false, "include subfolders of --folder-ids (expands against folders already in the repository)")
}

// orZero returns flag when set, otherwise fallback.
func orZero(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

func (f *runFlags) effectiveWorkers(cfg *config.Config) int {
	w := orZero(f.workers, cfg.Workers)
	if w > config.MaxWorkers {
		log.WithFields(log.Fields{"workers": w, "max": config.MaxWorkers}).
			Warn("workers capped")
		w = config.MaxWorkers
	}
	return w
}

func (f *runFlags) limiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(
		orZero(f.rateLimitPerMinute, cfg.RateLimitPerMinute),
		orZero(f.rateLimitPerSecond, cfg.RateLimitPerSecond),
	)
}

// restClient builds an API client from LOOKERSDK_* environment variables.
// Missing credentials are a configuration problem, not a connection one.
func restClient(cfg *config.Config) (*looker.RESTClient, error) {
	lcfg, err := looker.ConfigFromEnv()
	if err != nil {
		return nil, exitWith(exitValidation, err)
	}
	lcfg.Timeout = cfg.Timeout()
	return looker.NewREST(lcfg), nil
}

// expandFolderIDs resolves --recursive by walking the folder rows already
// in the repository. IDs whose subtree is unknown pass through unchanged.
func expandFolderIDs(ctx context.Context, ids []string, recursive bool) ([]string, error) {
	if !recursive || len(ids) == 0 {
		return ids, nil
	}

	folders, err := store.ListContent(ctx, types.TypeFolder, types.ContentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	children := make(map[string][]string)
	for _, f := range folders {
		if f.ParentID == nil || *f.ParentID == "" {
			continue
		}
		children[*f.ParentID] = append(children[*f.ParentID], f.ID)
	}

	seen := make(map[string]bool)
	queue := append([]string(nil), ids...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	if len(out) > len(ids) {
		log.WithFields(log.Fields{"requested": len(ids), "expanded": len(out)}).
			Debug("folder filter expanded recursively")
	}
	return out, nil
}
