package pack

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/z3z1ma/lookervault-sub000/internal/pathutil"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// orphanedDir receives dashboards and looks whose folder is unknown.
const orphanedDir = "_orphaned"

// CycleError reports a circular parent chain in the folder hierarchy.
// Path holds the folder IDs along the loop in parent-walk order.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	loop := append(append([]string{}, e.Path...), e.Path[0])
	return "circular folder reference: " + strings.Join(loop, " -> ")
}

// folderMapEntry is one folder_map record in metadata.json. The ID is
// repeated inside the entry so consumers can flatten the map.
type folderMapEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ParentID   string `json:"parent_id,omitempty"`
	Path       string `json:"path"`
	Depth      int    `json:"depth"`
	ChildCount int    `json:"child_count"`
}

type folderNode struct {
	id       string
	name     string
	parentID string
	children []*folderNode
	path     string
	depth    int
}

// folderTree is the resolved hierarchy: every folder assigned a sanitized,
// collision-free relative directory path.
type folderTree struct {
	nodes map[string]*folderNode
}

// buildFolderTree resolves folder items into a directory layout using BFS
// from the roots. A folder whose parent is absent from the set is treated
// as a root so partial extracts still unpack. Sibling directory names are
// sanitized and deduplicated case-insensitively with " (2)", " (3)", ...
// suffixes; traversal order is fixed by ID so repeated unpacks of the same
// repository produce identical paths. Any folder left unreached is part of
// a parent cycle and aborts the build.
func buildFolderTree(folders []*types.ContentItem) (*folderTree, error) {
	tree := &folderTree{nodes: make(map[string]*folderNode, len(folders))}
	for _, item := range folders {
		node := &folderNode{id: item.ID, name: item.Name}
		if item.ParentID != nil {
			node.parentID = *item.ParentID
		}
		tree.nodes[item.ID] = node
	}

	var roots []*folderNode
	for _, node := range tree.nodes {
		if node.parentID == "" || tree.nodes[node.parentID] == nil {
			roots = append(roots, node)
			continue
		}
		parent := tree.nodes[node.parentID]
		parent.children = append(parent.children, node)
	}
	sortNodes(roots)
	for _, node := range tree.nodes {
		sortNodes(node.children)
	}

	visited := 0
	rootNames := newNameSet()
	queue := make([]*folderNode, 0, len(tree.nodes))
	for _, root := range roots {
		root.path = rootNames.claim(root.name)
		root.depth = 0
		queue = append(queue, root)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++

		childNames := newNameSet()
		for _, child := range node.children {
			child.path = path.Join(node.path, childNames.claim(child.name))
			child.depth = node.depth + 1
			queue = append(queue, child)
		}
	}

	if visited < len(tree.nodes) {
		return nil, tree.findCycle()
	}
	return tree, nil
}

// pathOf returns the directory path for a folder ID, or "" when unknown.
func (t *folderTree) pathOf(id string) string {
	if node := t.nodes[id]; node != nil {
		return node.path
	}
	return ""
}

// dirs returns every folder directory path in sorted order.
func (t *folderTree) dirs() []string {
	out := make([]string, 0, len(t.nodes))
	for _, node := range t.nodes {
		out = append(out, node.path)
	}
	sort.Strings(out)
	return out
}

// mapEntries returns the folder_map block for metadata.json.
func (t *folderTree) mapEntries() map[string]folderMapEntry {
	out := make(map[string]folderMapEntry, len(t.nodes))
	for id, node := range t.nodes {
		out[id] = folderMapEntry{
			ID:         id,
			Name:       node.name,
			ParentID:   node.parentID,
			Path:       node.path,
			Depth:      node.depth,
			ChildCount: len(node.children),
		}
	}
	return out
}

// findCycle walks parent links from an unreached folder until one repeats,
// then returns the loop. The start is the smallest unreached ID so the
// reported path is stable.
func (t *folderTree) findCycle() *CycleError {
	reached := make(map[string]bool, len(t.nodes))
	var mark func(*folderNode)
	mark = func(n *folderNode) {
		reached[n.id] = true
		for _, c := range n.children {
			mark(c)
		}
	}
	for _, node := range t.nodes {
		if node.parentID == "" || t.nodes[node.parentID] == nil {
			mark(node)
		}
	}

	var start string
	for id := range t.nodes {
		if !reached[id] && (start == "" || id < start) {
			start = id
		}
	}

	order := []string{}
	index := map[string]int{}
	id := start
	for {
		if at, seen := index[id]; seen {
			return &CycleError{Path: order[at:]}
		}
		index[id] = len(order)
		order = append(order, id)
		id = t.nodes[id].parentID
	}
}

func sortNodes(nodes []*folderNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
}

// nameSet assigns unique sanitized names within one directory. Matching is
// case-insensitive because the common desktop filesystems are.
type nameSet struct {
	used map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{used: make(map[string]bool)}
}

func (s *nameSet) claim(name string) string {
	clean := pathutil.Sanitize(name)
	if key := strings.ToLower(clean); !s.used[key] {
		s.used[key] = true
		return clean
	}
	for n := 2; ; n++ {
		candidate := pathutil.WithSuffix(clean, fmt.Sprintf(" (%d)", n))
		if key := strings.ToLower(candidate); !s.used[key] {
			s.used[key] = true
			return candidate
		}
	}
}

// claimFile is claim for file names: the extension stays at the end and
// collision suffixes go before it.
func (s *nameSet) claimFile(base, ext string) string {
	clean := pathutil.Sanitize(base)
	candidate := pathutil.WithSuffix(clean, ext)
	if key := strings.ToLower(candidate); !s.used[key] {
		s.used[key] = true
		return candidate
	}
	for n := 2; ; n++ {
		candidate := pathutil.WithSuffix(clean, fmt.Sprintf(" (%d)%s", n, ext))
		if key := strings.ToLower(candidate); !s.used[key] {
			s.used[key] = true
			return candidate
		}
	}
}
