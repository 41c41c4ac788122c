// Package pack round-trips the content repository through a directory of
// editable YAML files.
//
// Unpack writes one YAML file per content item, either grouped by content
// type ("full" strategy) or nested under the Looker folder hierarchy
// ("folder" strategy), plus a metadata.json manifest at the export root.
// Pack reads an export back, validates every file, detects which items were
// edited by comparing content checksums, remaps modified dashboard queries
// to freshly created query IDs, and writes the changes to the repository in
// bounded transactions.
package pack

import (
	"errors"

	"github.com/z3z1ma/lookervault-sub000/internal/looker"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
)

// Strategy selects the export layout.
type Strategy string

const (
	// StrategyFull exports every content type as <out>/<type>/<id>.yaml.
	StrategyFull Strategy = "full"
	// StrategyFolder exports dashboards and looks into directories that
	// mirror the Looker folder tree.
	StrategyFolder Strategy = "folder"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyFull || s == StrategyFolder
}

// metadataVersion is the export format version written to metadata.json.
const metadataVersion = "1.0"

// ErrCommit marks a failed write transaction during pack. The batch that
// failed was rolled back and no later batch was attempted; earlier batches
// remain committed.
var ErrCommit = errors.New("pack: commit failed")

// Engine runs unpack and pack operations against one repository. The
// Looker client is only needed for packs that create remapped queries;
// unpack and dry-run work with a nil client.
type Engine struct {
	store  storage.Store
	client looker.Client
}

// New returns an engine bound to a repository and an optional client.
func New(store storage.Store, client looker.Client) *Engine {
	return &Engine{store: store, client: client}
}
