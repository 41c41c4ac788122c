package pack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// UnpackOptions configure one export run.
type UnpackOptions struct {
	// OutputDir is the export root, created if absent. Exporting over a
	// directory that holds unrelated files leaves those files in place;
	// they will confuse a later pack of the same tree.
	OutputDir string
	// Strategy selects the tree layout.
	Strategy Strategy
	// SourceDatabase, when set, is recorded in metadata.json so a later
	// pack can tell which repository the tree came from.
	SourceDatabase string
}

// UnpackResult summarizes an export.
type UnpackResult struct {
	Strategy   Strategy
	TotalItems int
	Counts     map[types.ContentType]int
	Checksum   string
	OutputDir  string
	Duration   time.Duration
}

// Unpack writes repository content into a YAML tree under opts.OutputDir
// and finishes with a metadata.json manifest. The full strategy exports
// every content type keyed by ID; the folder strategy exports dashboards
// and looks into directories mirroring the Looker folder hierarchy.
// Deleted items are never exported. Repository list order is stable, so
// file paths and collision suffixes are deterministic run to run.
func (e *Engine) Unpack(ctx context.Context, opts UnpackOptions) (*UnpackResult, error) {
	started := time.Now()
	if !opts.Strategy.Valid() {
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	schema, err := e.store.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	w := &treeWriter{root: opts.OutputDir, exportedAt: time.Now().UTC().Format(time.RFC3339)}
	counts := make(map[types.ContentType]int)
	var folderMap map[string]folderMapEntry

	switch opts.Strategy {
	case StrategyFull:
		err = e.unpackFull(ctx, w, counts)
	case StrategyFolder:
		folderMap, err = e.unpackByFolder(ctx, w, counts)
	}
	if err != nil {
		return nil, err
	}

	checksum, err := w.checksum()
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	meta := &exportMetadata{
		Version:               metadataVersion,
		ExportedAt:            w.exportedAt,
		Strategy:              opts.Strategy,
		DatabaseSchemaVersion: schema,
		SourceDatabase:        opts.SourceDatabase,
		TotalItems:            total,
		ContentCounts:         typeCounts(counts),
		Checksum:              checksum,
		FolderMap:             folderMap,
	}
	if err := writeJSONAtomic(filepath.Join(opts.OutputDir, metadataFile), meta); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"strategy": opts.Strategy,
		"items":    total,
		"output":   opts.OutputDir,
	}).Info("unpack complete")

	return &UnpackResult{
		Strategy:   opts.Strategy,
		TotalItems: total,
		Counts:     counts,
		Checksum:   checksum,
		OutputDir:  opts.OutputDir,
		Duration:   time.Since(started),
	}, nil
}

func (e *Engine) unpackFull(ctx context.Context, w *treeWriter, counts map[types.ContentType]int) error {
	for _, ct := range types.AllContentTypes() {
		items, err := e.store.ListContent(ctx, ct, types.ContentFilter{})
		if err != nil {
			return fmt.Errorf("list %s: %w", ct, err)
		}
		names := newNameSet()
		for _, item := range items {
			rel := path.Join(ct.DirName(), names.claimFile(item.ID, ".yaml"))
			if err := w.write(rel, item, ""); err != nil {
				return err
			}
			counts[ct]++
		}
	}
	return nil
}

// unpackByFolder lays dashboards and looks out under their Looker folder
// paths. Items whose folder is unknown land in _orphaned/. File names come
// from the item title, deduplicated per directory, so the tree reads the
// way the Looker UI does.
func (e *Engine) unpackByFolder(ctx context.Context, w *treeWriter, counts map[types.ContentType]int) (map[string]folderMapEntry, error) {
	folders, err := e.store.ListContent(ctx, types.TypeFolder, types.ContentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	tree, err := buildFolderTree(folders)
	if err != nil {
		return nil, err
	}
	for _, dir := range tree.dirs() {
		if err := os.MkdirAll(filepath.Join(w.root, filepath.FromSlash(dir)), 0o755); err != nil {
			return nil, fmt.Errorf("create folder dir %s: %w", dir, err)
		}
	}

	names := make(map[string]*nameSet)
	for _, ct := range []types.ContentType{types.TypeLook, types.TypeDashboard} {
		items, err := e.store.ListContent(ctx, ct, types.ContentFilter{})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ct, err)
		}
		for _, item := range items {
			dir := orphanedDir
			if item.FolderID != nil {
				if p := tree.pathOf(*item.FolderID); p != "" {
					dir = p
				}
			}
			ns := names[dir]
			if ns == nil {
				ns = newNameSet()
				names[dir] = ns
			}
			base := item.Name
			if base == "" {
				base = item.ID
			}
			rel := path.Join(dir, ns.claimFile(base, ".yaml"))
			if err := w.write(rel, item, dir); err != nil {
				return nil, err
			}
			counts[ct]++
		}
	}
	return tree.mapEntries(), nil
}

func typeCounts(counts map[types.ContentType]int) map[string]int {
	out := make(map[string]int, len(counts))
	for ct, n := range counts {
		out[string(ct)] = n
	}
	return out
}

// treeWriter writes content files under one export root and remembers
// every path for the aggregate checksum.
type treeWriter struct {
	root       string
	exportedAt string
	files      []string
}

func (w *treeWriter) write(rel string, item *types.ContentItem, folderPath string) error {
	payload, err := codec.Decode(item.ContentData)
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", item.ContentType, item.ID, err)
	}
	meta := fileMetadata{
		DBID:        item.ID,
		ContentType: item.ContentType,
		ExportedAt:  w.exportedAt,
		ContentSize: item.ContentSize,
		FolderPath:  folderPath,
	}
	data, err := renderFile(payload, meta)
	if err != nil {
		return fmt.Errorf("render %s %s: %w", item.ContentType, item.ID, err)
	}
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	w.files = append(w.files, rel)
	return nil
}

// checksum hashes every written file's bytes in sorted path order.
func (w *treeWriter) checksum() (string, error) {
	sort.Strings(w.files)
	h := codec.NewChecksumHash()
	for _, rel := range w.files {
		f, err := os.Open(filepath.Join(w.root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("reread %s: %w", rel, err)
		}
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", rel, err)
		}
	}
	return codec.FormatChecksum(h), nil
}
