// Package view implements the View Engine of spec.md §4.4: the in-memory
// prefix tree built from a view's dirtree and `SELECT DISTINCT` catalog
// tuples, and the reversible filename template (fn_gen) used to format
// and parse leaf names.
package view

import (
	"fmt"
	"sort"
	"sync"
)

// node is one View Tree Node (spec.md's Data Model table): a child map
// keyed by path segment, plus whether a distinct catalog tuple ended at
// this node during the last Rebuild (false for intermediate nodes and for
// ephemeral nodes spliced in by mkdir).
type node struct {
	children map[string]*node
	terminal bool
}

func newNode() *node { return &node{children: map[string]*node{}} }

// Engine is the mounted view: its dirtree key order and the tree built
// from it, plus the compiled filename template.
type Engine struct {
	mu      sync.RWMutex
	dirtree []string
	tmpl    *Template
	root    *node
}

// NewEngine compiles fnGen and returns an Engine with an empty tree;
// callers populate it with Rebuild once the catalog is available.
func NewEngine(dirtree []string, fnGen string) (*Engine, error) {
	tmpl, err := Compile(fnGen)
	if err != nil {
		return nil, fmt.Errorf("view: compile fn_gen: %w", err)
	}
	return &Engine{
		dirtree: append([]string(nil), dirtree...),
		tmpl:    tmpl,
		root:    newNode(),
	}, nil
}

// DirTree returns the view's ordered key list.
func (e *Engine) DirTree() []string { return append([]string(nil), e.dirtree...) }

// Depth is the number of directory levels below the mountpoint before
// reaching catalog leaves.
func (e *Engine) Depth() int { return len(e.dirtree) }

// Template returns the compiled filename template, for Format/Parse.
func (e *Engine) Template() *Template { return e.tmpl }

// Rebuild replaces the tree wholesale from a fresh set of distinct
// dirtree-column tuples, discarding any ephemeral mkdir-only nodes — per
// spec.md §4.4, the tree is rebuilt, not patched, whenever the distinct
// set may have changed.
func (e *Engine) Rebuild(tuples [][]string) {
	root := newNode()
	for _, tuple := range tuples {
		cur := root
		for _, seg := range tuple {
			if seg == "" {
				break // empty segments must never appear in the tree
			}
			child, ok := cur.children[seg]
			if !ok {
				child = newNode()
				cur.children[seg] = child
			}
			cur = child
		}
		cur.terminal = true
	}

	e.mu.Lock()
	e.root = root
	e.mu.Unlock()
}

// walk resolves segments against the tree, returning the node reached and
// whether every segment matched.
func (e *Engine) walk(segments []string) (*node, bool) {
	cur := e.root
	for _, seg := range segments {
		next, ok := cur.children[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Exists reports whether segments names a directory in the tree.
func (e *Engine) Exists(segments []string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.walk(segments)
	return ok
}

// Children lists the immediate child segment names under segments, sorted
// for deterministic readdir ordering. An error is returned if segments
// does not resolve or names a leaf-level directory (depth == Depth()).
func (e *Engine) Children(segments []string) ([]string, error) {
	if len(segments) >= len(e.dirtree) {
		return nil, fmt.Errorf("view: depth %d has no view-tree children (dirtree has %d levels)", len(segments), len(e.dirtree))
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.walk(segments)
	if !ok {
		return nil, fmt.Errorf("view: path %v not found in view tree", segments)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Mkdir splices an empty node named name under parentSegments, per
// spec.md §4.6's mkdir: the node is ephemeral until a file's metadata
// is carried there and a rebuild recreates it from the catalog.
func (e *Engine) Mkdir(parentSegments []string, name string) error {
	if name == "" {
		return fmt.Errorf("view: mkdir: empty name")
	}
	if len(parentSegments) >= len(e.dirtree) {
		return fmt.Errorf("view: mkdir: depth %d is at or below the leaf level", len(parentSegments))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	parent, ok := e.walk(parentSegments)
	if !ok {
		return fmt.Errorf("view: mkdir: parent %v not found", parentSegments)
	}
	if _, exists := parent.children[name]; exists {
		return fmt.Errorf("view: mkdir: %q already exists", name)
	}
	parent.children[name] = newNode()
	return nil
}

// Rmdir removes an empty child node named name under parentSegments.
func (e *Engine) Rmdir(parentSegments []string, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	parent, ok := e.walk(parentSegments)
	if !ok {
		return fmt.Errorf("view: rmdir: parent %v not found", parentSegments)
	}
	child, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("view: rmdir: %q not found", name)
	}
	if len(child.children) != 0 {
		return fmt.Errorf("view: rmdir: %q is not empty", name)
	}
	delete(parent.children, name)
	return nil
}

// Deduplicate returns names with every repeat after the first suffixed
// " (libfs:N)" for N = 1, 2, ..., per spec.md §4.4's duplicate-leaf rule.
// Input order is preserved; only the string values change.
func Deduplicate(names []string) []string {
	seen := map[string]int{}
	out := make([]string, len(names))
	for i, name := range names {
		n := seen[name]
		seen[name] = n + 1
		if n == 0 {
			out[i] = name
		} else {
			out[i] = fmt.Sprintf("%s (libfs:%d)", name, n)
		}
	}
	return out
}
