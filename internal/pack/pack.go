package pack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// defaultBatchSize bounds how many writes share one transaction.
const defaultBatchSize = 100

// PackOptions configure one import run.
type PackOptions struct {
	// InputDir is the export root produced by Unpack.
	InputDir string
	// DryRun validates, detects modifications, and plans query remapping
	// without touching the repository or the Looker instance.
	DryRun bool
	// Force marks repository items deleted when their content type appears
	// in the export but the item itself does not.
	Force bool
	// BatchSize overrides the per-transaction write bound; zero means the
	// default of 100.
	BatchSize int
}

// PackResult summarizes an import.
type PackResult struct {
	Files          int
	Unchanged      int
	Modified       int
	New            int
	Deleted        int
	QueriesCreated int
	DryRun         bool
	Duration       time.Duration
}

// FileError ties a validation failure to the file that caused it.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

// ValidationErrors aggregates every per-file failure found while reading
// an export tree. Nothing is written when any file fails validation.
type ValidationErrors struct {
	Files []FileError
}

func (e *ValidationErrors) Error() string {
	if len(e.Files) == 1 {
		return "1 file failed validation: " + e.Files[0].Error()
	}
	return fmt.Sprintf("%d files failed validation (first: %s)", len(e.Files), e.Files[0].Error())
}

type fileState int

const (
	stateUnchanged fileState = iota
	stateModified
	stateNew
)

// packedFile is one content file read from an export tree.
type packedFile struct {
	rel     string
	ct      types.ContentType
	id      string
	payload map[string]any
	meta    *fileMetadata
	state   fileState
	orig    *types.ContentItem
}

// Pack imports an export tree back into the repository. Every file is
// validated first and all failures are reported together; nothing is
// written unless the whole tree validates. Files whose canonical content
// still hashes to the checksum recorded at unpack time are skipped, so a
// cosmetic edit (reordered keys, comments, whitespace) is not a change.
// Modified dashboards get their element queries remapped to fresh query
// IDs before the rows are written in transactions of at most BatchSize.
func (e *Engine) Pack(ctx context.Context, opts PackOptions) (*PackResult, error) {
	started := time.Now()

	meta, err := readMetadata(opts.InputDir)
	if err != nil {
		return nil, err
	}
	schema, err := e.store.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if meta.DatabaseSchemaVersion != schema {
		return nil, fmt.Errorf("export was written at schema version %d, repository is at %d",
			meta.DatabaseSchemaVersion, schema)
	}

	paths, err := discoverFiles(opts.InputDir)
	if err != nil {
		return nil, err
	}

	files, verrs := loadFiles(opts.InputDir, paths)
	if verrs != nil {
		return nil, verrs
	}

	res := &PackResult{Files: len(files), DryRun: opts.DryRun}
	if err := e.classifyFiles(ctx, files, res); err != nil {
		return nil, err
	}

	table := newRemapTable(e.client)
	for _, f := range files {
		if f.ct != types.TypeDashboard || f.state == stateUnchanged {
			continue
		}
		if err := table.remapDashboard(ctx, f, opts.DryRun); err != nil {
			return nil, err
		}
	}
	res.QueriesCreated = table.size()

	deletes := e.planDeletes(ctx, files, opts.Force)
	res.Deleted = len(deletes)

	if !opts.DryRun {
		if err := e.writeBatches(ctx, files, deletes, opts.BatchSize); err != nil {
			return res, err
		}
		if table.size() > 0 {
			if err := table.persist(opts.InputDir); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("query remapping state not saved")
			}
		}
	}
	res.Duration = time.Since(started)

	log.WithFields(log.Fields{
		"files":     res.Files,
		"unchanged": res.Unchanged,
		"modified":  res.Modified,
		"new":       res.New,
		"deleted":   res.Deleted,
		"queries":   res.QueriesCreated,
		"dry_run":   res.DryRun,
	}).Info("pack complete")
	return res, nil
}

// discoverFiles walks the export tree for content files, skipping the
// manifest and the .pack_state directory. Paths come back sorted so
// batching and remapping order is stable run to run.
func discoverFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == stateDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan export tree: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadFiles parses and validates every discovered file. All failures are
// aggregated; a tree with any invalid file imports nothing.
func loadFiles(root string, paths []string) ([]*packedFile, *ValidationErrors) {
	verrs := &ValidationErrors{}
	seen := make(map[types.ContentType]map[string]string)
	files := make([]*packedFile, 0, len(paths))

	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			verrs.Files = append(verrs.Files, FileError{Path: rel, Err: err})
			continue
		}
		payload, meta, err := parseFile(data)
		if err != nil {
			verrs.Files = append(verrs.Files, FileError{Path: rel, Err: err})
			continue
		}
		if err := validateContentFile(meta.ContentType, meta.DBID, payload); err != nil {
			verrs.Files = append(verrs.Files, FileError{Path: rel, Err: err})
			continue
		}

		byID := seen[meta.ContentType]
		if byID == nil {
			byID = make(map[string]string)
			seen[meta.ContentType] = byID
		}
		if first, dup := byID[meta.DBID]; dup {
			verrs.Files = append(verrs.Files, FileError{
				Path: rel,
				Err:  fmt.Errorf("duplicate %s %s (already defined in %s)", meta.ContentType, meta.DBID, first),
			})
			continue
		}
		byID[meta.DBID] = rel

		files = append(files, &packedFile{
			rel:     rel,
			ct:      meta.ContentType,
			id:      meta.DBID,
			payload: payload,
			meta:    meta,
		})
	}

	if len(verrs.Files) > 0 {
		return nil, verrs
	}
	return files, nil
}

// classifyFiles marks each file unchanged, modified, or new. Unchanged
// means the canonical serialization still hashes to the checksum stamped
// at unpack time; those files are never compared against the repository.
func (e *Engine) classifyFiles(ctx context.Context, files []*packedFile, res *PackResult) error {
	for _, f := range files {
		content, err := canonicalContent(f.payload)
		if err != nil {
			return fmt.Errorf("%s: %w", f.rel, err)
		}
		if codec.Checksum(content) == f.meta.Checksum {
			f.state = stateUnchanged
			res.Unchanged++
			continue
		}
		orig, err := e.store.GetContent(ctx, f.ct, f.id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			f.state = stateNew
			res.New++
		case err != nil:
			return fmt.Errorf("probe %s %s: %w", f.ct, f.id, err)
		default:
			f.state = stateModified
			f.orig = orig
			res.Modified++
		}
	}
	return nil
}

// planDeletes lists repository items whose content type appears in the
// export but whose ID does not. Content types absent from the export are
// left alone, so a folder-strategy pack never touches users or roles.
func (e *Engine) planDeletes(ctx context.Context, files []*packedFile, force bool) []deleteRef {
	if !force {
		return nil
	}
	present := make(map[types.ContentType]map[string]bool)
	for _, f := range files {
		if present[f.ct] == nil {
			present[f.ct] = make(map[string]bool)
		}
		present[f.ct][f.id] = true
	}

	var deletes []deleteRef
	for _, ct := range types.AllContentTypes() {
		ids := present[ct]
		if ids == nil {
			continue
		}
		items, err := e.store.ListContent(ctx, ct, types.ContentFilter{})
		if err != nil {
			log.WithFields(log.Fields{"content_type": ct, "error": err}).Warn("force delete scan failed")
			continue
		}
		for _, item := range items {
			if !ids[item.ID] {
				deletes = append(deletes, deleteRef{ct: ct, id: item.ID})
			}
		}
	}
	return deletes
}

type deleteRef struct {
	ct types.ContentType
	id string
}

// writeBatches applies modified and new rows, then force deletes, in
// transactions of at most batchSize operations. A failed commit stops the
// run; earlier batches stay committed.
func (e *Engine) writeBatches(ctx context.Context, files []*packedFile, deletes []deleteRef, batchSize int) error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var upserts []*types.ContentItem
	for _, f := range files {
		if f.state == stateUnchanged {
			continue
		}
		item, err := codec.ItemFromPayload(f.ct, f.payload)
		if err != nil {
			return fmt.Errorf("%s: %w", f.rel, err)
		}
		upserts = append(upserts, item)
	}

	batchNo := 0
	for start := 0; start < len(upserts); start += batchSize {
		end := start + batchSize
		if end > len(upserts) {
			end = len(upserts)
		}
		chunk := upserts[start:end]
		batchNo++
		err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			for _, item := range chunk {
				if err := tx.SaveContent(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit batch %d: %w: %w", batchNo, ErrCommit, err)
		}
	}

	for start := 0; start < len(deletes); start += batchSize {
		end := start + batchSize
		if end > len(deletes) {
			end = len(deletes)
		}
		chunk := deletes[start:end]
		batchNo++
		err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			for _, ref := range chunk {
				if err := tx.MarkContentDeleted(ctx, ref.ct, ref.id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit batch %d: %w: %w", batchNo, ErrCommit, err)
		}
	}
	return nil
}
