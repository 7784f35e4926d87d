// Package fuseops is the Operations Layer of spec.md §4.6: the FUSE
// upcall dispatcher that projects a Catalog, through a View Engine, into
// a directory hierarchy, using an Identity Cache to keep inode numbers
// and open file descriptors stable across calls. Grounded on the
// go-fuse/v2 high-level API usage in the teacher's internal/fs package
// (BaseNode embedding, NewInode/StableAttr, fs.Mount).
package fuseops

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"

	"github.com/cghanke/libfs/internal/cache"
	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/plugin"
	"github.com/cghanke/libfs/internal/view"
)

// attrTimeout and entryTimeout are kept short: a rename rewrites the
// catalog and the view tree it's derived from, and the kernel must ask
// again soon after rather than serve a stale listing from its cache.
const (
	attrTimeout  = 1 * time.Second
	entryTimeout = 1 * time.Second
)

// FS is the mounted filesystem's shared state: the catalog it reads from,
// the plugin that validates and rewrites metadata, the view currently
// selected, and the Identity Cache every node consults for inode and fd
// bookkeeping.
type FS struct {
	cat        *catalog.Catalog
	plug       plugin.Plugin
	engine     *view.Engine
	ids        *cache.Cache
	logger     zerolog.Logger
	server     *fuse.Server
	uid        uint32
	gid        uint32
	mountpoint string
}

// New builds the mount's FS, compiling viewName's (dirtree, fn_gen) into a
// View Engine and populating its prefix tree from the catalog's current
// distinct tuples (spec.md §4.4's initial build).
func New(cat *catalog.Catalog, plug plugin.Plugin, viewName string, logger zerolog.Logger) (*FS, error) {
	v, err := cat.GetView(viewName)
	if err != nil {
		return nil, err
	}
	engine, err := view.NewEngine(v.DirTree, v.FnGen)
	if err != nil {
		return nil, err
	}
	fsys := &FS{
		cat:    cat,
		plug:   plug,
		engine: engine,
		ids:    cache.New(),
		logger: logger,
		uid:    uint32(os.Getuid()),
		gid:    uint32(os.Getgid()),
	}
	if err := fsys.rebuildView(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// rebuildView reloads the View Engine's prefix tree from the catalog's
// current distinct dirtree tuples. Called at startup and after every
// directory rename, per spec.md §4.4's "rebuilt wholesale" rule.
func (f *FS) rebuildView() error {
	tuples, err := f.cat.DistinctTuples(f.engine.DirTree())
	if err != nil {
		return err
	}
	f.engine.Rebuild(tuples)
	return nil
}

// setServer records the fuse.Server for kernel cache invalidation, once
// Mount has created it — mirroring the teacher's LinearFS.SetServer.
func (f *FS) setServer(server *fuse.Server) { f.server = server }

func (f *FS) invalidateEntry(parent uint64, name string) {
	if f.server != nil {
		f.server.EntryNotify(parent, name)
	}
}

func (f *FS) invalidateInode(ino uint64) {
	if f.server != nil {
		f.server.InodeNotify(ino, 0, -1)
	}
}

// reject logs a failed upcall at Warn with its errno and returns that
// errno unchanged, so call sites can write `return f.reject(...)`.
func (f *FS) reject(op, name string, errno syscall.Errno) syscall.Errno {
	f.logger.Warn().Str("op", op).Str("name", name).Str("errno", errno.Error()).Msg("upcall failed")
	return errno
}

// Mount starts serving fsys at mountpoint, in the style of the teacher's
// fs.Mount/fs.MountFS wrappers.
func Mount(mountpoint string, fsys *FS, debugFuse bool) (*fuse.Server, error) {
	abs, err := filepath.Abs(mountpoint)
	if err != nil {
		return nil, err
	}
	fsys.mountpoint = abs

	root := &DirNode{fsys: fsys, segments: nil}

	at := attrTimeout
	et := entryTimeout
	opts := &fs.Options{
		AttrTimeout:  &at,
		EntryTimeout: &et,
		MountOptions: fuse.MountOptions{
			Name:   "libfs",
			FsName: "libfs",
			Debug:  debugFuse,
		},
	}

	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	fsys.setServer(server)
	return server, nil
}
