// Package plugin defines the metadata-backend capability contract of
// spec.md §4.2: a plugin knows how to recognise its file types, read their
// tags into the catalog's valid keys, and write a changed key back into
// the underlying file. internal/plugin/audio and internal/plugin/image
// are the two concrete implementations.
package plugin

import "fmt"

// Plugin is the capability set a metadata backend exposes to the rest of
// libfs. Every method must be safe to call concurrently with itself and
// with the other methods; callers serialise mutation at a higher level
// (the Identity Cache's lock), not here.
type Plugin interface {
	// Name identifies the plugin in the library's magic row.
	Name() string

	// ValidKeys lists every metadata field this plugin can read or write,
	// in the order the files-table columns should be declared.
	ValidKeys() []string

	// DefaultView is the (dirtree, fn_gen) installed when a brand-new
	// library is created under this plugin.
	DefaultView() DefaultView

	// IsValidMetadata reports whether value is an acceptable value for
	// key, per spec.md §4.2. Used to validate a directory segment at
	// mkdir/rename time and a parsed filename's fields before a leaf
	// rename is allowed to proceed.
	IsValidMetadata(key string, value string) bool

	// ReadMetadata extracts every valid key's value from srcPath. Missing
	// tags are not errors: they are left out of the map or reported as
	// empty strings, and the Catalog coerces both to Unknown.
	ReadMetadata(srcPath string) (map[string]string, error)

	// WriteMetadata patches every key in values into the file at srcPath,
	// atomically with respect to the file's other tags (spec.md §4.2).
	// Every key must be one of ValidKeys(); callers are expected to have
	// validated that already.
	WriteMetadata(srcPath string, values map[string]string) error
}

// DefaultView mirrors catalog.View's shape without importing the catalog
// package, so plugin implementations carry no catalog dependency; callers
// convert it with catalog.View(p.DefaultView()).
type DefaultView struct {
	DirTree []string
	FnGen   string
}

// Registry maps plugin names (as stored in a library's magic row) to
// constructed Plugin instances, used by internal/cmd to resolve --type and
// to validate a library's magic.Plugin at mount time.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry builds a Registry from the given plugins, keyed by Name().
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Name()] = p
	}
	return r
}

// Get returns the named plugin, or an error if no such plugin is registered.
func (r *Registry) Get(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("plugin: no such plugin %q", name)
	}
	return p, nil
}

// Names lists every registered plugin name, for --help text and error
// messages.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	return names
}
