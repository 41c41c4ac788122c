package pack

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// watchDebounce coalesces bursts of filesystem events into one run;
// editors fire several events per save.
const watchDebounce = 500 * time.Millisecond

// Watch re-validates an export tree every time it changes, reporting each
// dry run to onResult. The first run fires immediately so the terminal
// shows the current state before any edit. Watch returns when ctx is
// cancelled or the watcher shuts down.
func (e *Engine) Watch(ctx context.Context, opts PackOptions, onResult func(*PackResult, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchTree(watcher, opts.InputDir); err != nil {
		return err
	}

	opts.DryRun = true
	run := func() {
		res, err := e.Pack(ctx, opts)
		onResult(res, err)
	}
	run()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(filepath.Dir(event.Name)) == stateDir {
				continue
			}
			// New directories must be registered before events inside
			// them can be seen.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, run)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithFields(log.Fields{"error": err}).Warn("watcher error")
		}
	}
}

// watchTree registers dir and every subdirectory except .pack_state.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == stateDir {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
