package pack

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// metadataFile is the manifest written at the export root.
const metadataFile = "metadata.json"

// exportMetadata is the metadata.json schema. Checksum covers the
// concatenated bytes of every content file in sorted path order; the
// manifest itself is excluded so the value stays computable.
type exportMetadata struct {
	Version               string                    `json:"version"`
	ExportedAt            string                    `json:"exported_at"`
	Strategy              Strategy                  `json:"strategy"`
	DatabaseSchemaVersion int                       `json:"database_schema_version"`
	SourceDatabase        string                    `json:"source_database,omitempty"`
	TotalItems            int                       `json:"total_items"`
	ContentCounts         map[string]int            `json:"content_counts"`
	Checksum              string                    `json:"checksum"`
	FolderMap             map[string]folderMapEntry `json:"folder_map,omitempty"`
}

// readMetadata loads and version-checks the manifest of an export tree.
func readMetadata(dir string) (*exportMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metadataFile, err)
	}
	meta := &exportMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metadataFile, err)
	}
	if meta.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported export version %q (this build reads %s)", meta.Version, metadataVersion)
	}
	return meta, nil
}

// writeJSONAtomic writes v as indented JSON through a temp file and
// rename, so a crash mid-write never leaves a truncated file behind.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	// Close before rename; the double close in the defer is harmless.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
