package fuseops

import (
	"context"
	"errors"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/fserr"
	"github.com/cghanke/libfs/internal/view"
)

// DirNode is a virtual directory vnode of spec.md §4.6: either the mount
// root (segments == nil), an intermediate view-tree directory
// (len(segments) < engine.Depth()), or the directory of leaf files one
// level above the catalog rows themselves (len(segments) == Depth()).
// segments holds the dirtree values chosen so far, in dirtree order.
type DirNode struct {
	fs.Inode
	fsys     *FS
	segments []string
}

var _ fs.NodeLookuper = (*DirNode)(nil)
var _ fs.NodeReaddirer = (*DirNode)(nil)
var _ fs.NodeGetattrer = (*DirNode)(nil)
var _ fs.NodeMkdirer = (*DirNode)(nil)
var _ fs.NodeRmdirer = (*DirNode)(nil)
var _ fs.NodeRenamer = (*DirNode)(nil)
var _ fs.NodeCreater = (*DirNode)(nil)
var _ fs.NodeStatfser = (*DirNode)(nil)

// LeafNode is a leaf vnode: a passthrough to a single catalog-row file on
// the real filesystem, identified by the file's own inode number.
type LeafNode struct {
	fs.Inode
	fsys    *FS
	srcPath string
}

var _ fs.NodeGetattrer = (*LeafNode)(nil)
var _ fs.NodeOpener = (*LeafNode)(nil)
var _ fs.NodeReader = (*LeafNode)(nil)
var _ fs.NodeReleaser = (*LeafNode)(nil)

// fileHandle wraps the raw fd the Identity Cache hands back from
// cache.Cache.OpenFd, so Read/Release can recover it without a type
// assertion on an interface{}.
type fileHandle struct{ fd int }

func vpathOf(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// appendSeg returns segments+name as a freshly allocated slice, never
// aliasing base's backing array — base is shared by every sibling Lookup
// and Readdir call against the same DirNode.
func appendSeg(base []string, name string) []string {
	out := make([]string, len(base)+1)
	copy(out, base)
	out[len(base)] = name
	return out
}

// segmentsEqual reports whether two same-length dirtree segment lists
// hold identical values — used to tell a same-parent rename from a
// cross-parent one independent of node identity/attachment.
func segmentsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (n *DirNode) ino() uint64 { return n.EmbeddedInode().StableAttr().Ino }

// dirEntryOut fills out with a virtual directory's attributes and
// returns its (possibly freshly allocated) Identity Cache inode number.
func (f *FS) dirEntryOut(segments []string, out *fuse.EntryOut) uint64 {
	ino := f.ids.VdirInode(vpathOf(segments))
	now := time.Now()
	out.Attr.Mode = 0555 | syscall.S_IFDIR
	out.Attr.Ino = ino
	out.Attr.Uid = f.uid
	out.Attr.Gid = f.gid
	out.Attr.SetTimes(&now, &now, &now)
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	return ino
}

func (n *DirNode) newChildDirInode(ctx context.Context, segments []string, out *fuse.EntryOut) *fs.Inode {
	ino := n.fsys.dirEntryOut(segments, out)
	child := &DirNode{fsys: n.fsys, segments: segments}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: ino})
}

func (n *DirNode) newChildLeafInode(ctx context.Context, name, srcPath string, st *syscall.Stat_t, out *fuse.EntryOut) *fs.Inode {
	ino := uint64(st.Ino)
	n.fsys.ids.AddInodePathPair(ino, vpathOf(appendSeg(n.segments, name)))
	out.Attr.FromStat(st)
	out.Attr.Ino = ino
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	child := &LeafNode{fsys: n.fsys, srcPath: srcPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino})
}

// listLeaves returns the catalog rows matching this directory's ancestor
// values, alongside their deduplicated synthesized names in the same
// order, per spec.md §4.4's duplicate-leaf rule.
func (n *DirNode) listLeaves() (rows []catalog.FileRow, names []string, err error) {
	r, err := n.fsys.cat.ListByPrefix(n.fsys.engine.DirTree(), n.segments)
	if err != nil {
		return nil, nil, err
	}
	raw := make([]string, len(r))
	for i, row := range r {
		raw[i] = n.fsys.engine.Template().Format(row.Values)
	}
	return r, view.Deduplicate(raw), nil
}

func (n *DirNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Attr.Mode = 0555 | syscall.S_IFDIR
	out.Attr.Ino = n.ino()
	out.Attr.Uid = n.fsys.uid
	out.Attr.Gid = n.fsys.gid
	out.Attr.SetTimes(&now, &now, &now)
	return 0
}

func (n *DirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	depth := len(n.segments)

	if depth == 0 && name == ".." {
		return n.lookupMountParent(ctx, out)
	}

	if depth < n.fsys.engine.Depth() {
		child := appendSeg(n.segments, name)
		if !n.fsys.engine.Exists(child) {
			return nil, fserr.ErrNoEnt
		}
		return n.newChildDirInode(ctx, child, out), 0
	}

	parentIno := n.ino()
	if srcPath, ok := n.fsys.ids.LeafHint(parentIno, name); ok {
		var st syscall.Stat_t
		if err := syscall.Lstat(srcPath, &st); err == nil {
			return n.newChildLeafInode(ctx, name, srcPath, &st, out), 0
		}
		// The hinted file vanished underneath us; recompute below.
	}

	rows, names, err := n.listLeaves()
	if err != nil {
		return nil, fserr.ToErrno(err)
	}
	for i, candidate := range names {
		n.fsys.ids.SetLeafHint(parentIno, candidate, rows[i].SrcPath)
		if candidate == name {
			var st syscall.Stat_t
			if err := syscall.Lstat(rows[i].SrcPath, &st); err != nil {
				return nil, fserr.ErrNoEnt
			}
			return n.newChildLeafInode(ctx, name, rows[i].SrcPath, &st, out), 0
		}
	}
	return nil, fserr.ErrNoEnt
}

func (n *DirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	depth := len(n.segments)
	parentIno := n.ino()

	if depth < n.fsys.engine.Depth() {
		children, err := n.fsys.engine.Children(n.segments)
		if err != nil {
			return nil, fserr.ToErrno(err)
		}
		entries := make([]fuse.DirEntry, len(children))
		for i, name := range children {
			ino := n.fsys.ids.VdirInode(vpathOf(appendSeg(n.segments, name)))
			entries[i] = fuse.DirEntry{Name: name, Mode: syscall.S_IFDIR, Ino: ino}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Ino < entries[j].Ino })
		return fs.NewListDirStream(entries), 0
	}

	rows, names, err := n.listLeaves()
	if err != nil {
		return nil, fserr.ToErrno(err)
	}
	entries := make([]fuse.DirEntry, len(rows))
	for i, row := range rows {
		n.fsys.ids.SetLeafHint(parentIno, names[i], row.SrcPath)
		entries[i] = fuse.DirEntry{Name: names[i], Mode: syscall.S_IFREG, Ino: uint64(row.SrcInode)}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ino < entries[j].Ino })
	return fs.NewListDirStream(entries), 0
}

// Create always fails: libfs has no way to materialise a new source file
// out of nothing, so any open(2) with O_CREAT surfaces EROFS per
// spec.md §7.
func (n *DirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, fserr.ErrReadOnly
}

func (n *DirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	depth := len(n.segments)
	if depth >= n.fsys.engine.Depth() {
		return nil, fserr.ErrNoLink
	}
	key := n.fsys.engine.DirTree()[depth]
	if !n.fsys.plug.IsValidMetadata(key, name) {
		return nil, fserr.ErrInval
	}
	if err := n.fsys.engine.Mkdir(n.segments, name); err != nil {
		return nil, syscall.EEXIST
	}
	n.fsys.invalidateEntry(n.ino(), name)
	return n.newChildDirInode(ctx, appendSeg(n.segments, name), out), 0
}

func (n *DirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	depth := len(n.segments)
	if depth >= n.fsys.engine.Depth() {
		return fserr.ErrNoLink
	}
	child := appendSeg(n.segments, name)
	if !n.fsys.engine.Exists(child) {
		return fserr.ErrNoEnt
	}
	if err := n.fsys.engine.Rmdir(n.segments, name); err != nil {
		return syscall.ENOTEMPTY
	}
	if childIno, ok := n.fsys.ids.InodeForVpath(vpathOf(child)); ok {
		n.fsys.ids.ClearLeafHintsForParent(childIno)
	}
	n.fsys.invalidateEntry(n.ino(), name)
	return 0
}

// Rename implements spec.md §4.6's rename algorithm. newParent may be any
// directory node at the same depth as this one — moving an entry to a
// different parent at the same depth changes more than one dirtree value
// at once, which catalog.UpdateColumns already supports (it WHEREs on
// every old-tuple position and SETs only the ones that actually differ) —
// so only a newParent of the wrong depth, or no directory at all, is
// rejected with EADDRNOTAVAIL, per spec.md §4.6's precondition
// len(old_vpath_list) == len(new_vpath_list).
func (n *DirNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	n.fsys.logger.Debug().Str("op", "rename").Str("name", name).Str("new_name", newName).Msg("upcall")

	newDir, ok := newParent.(*DirNode)
	if !ok || len(newDir.segments) != len(n.segments) {
		return n.fsys.reject("rename", name, fserr.ErrAddrNotAvail)
	}
	if name == newName && segmentsEqual(n.segments, newDir.segments) {
		return n.fsys.reject("rename", name, fserr.ErrInval)
	}

	var errno syscall.Errno
	if len(n.segments) < n.fsys.engine.Depth() {
		errno = n.renameDir(newDir, name, newName)
	} else {
		errno = n.renameLeaf(newDir, name, newName)
	}
	if errno != 0 {
		return n.fsys.reject("rename", name, errno)
	}
	return 0
}

func (n *DirNode) renameDir(newDir *DirNode, name, newName string) syscall.Errno {
	depth := len(n.segments)
	if !n.fsys.engine.Exists(appendSeg(n.segments, name)) {
		return fserr.ErrNoEnt
	}

	oldVals := appendSeg(n.segments, name)
	newVals := appendSeg(newDir.segments, newName)
	dirtree := n.fsys.engine.DirTree()
	for i := 0; i <= depth; i++ {
		if oldVals[i] != newVals[i] && !n.fsys.plug.IsValidMetadata(dirtree[i], newVals[i]) {
			return fserr.ErrInval
		}
	}

	n.fsys.ids.Lock()
	defer n.fsys.ids.Unlock()

	if err := n.fsys.cat.UpdateColumns(dirtree, oldVals, newVals); err != nil {
		return fserr.ToErrno(err)
	}
	if err := n.fsys.rebuildView(); err != nil {
		return fserr.ErrIO
	}
	n.fsys.ids.RenameDirPrefix(vpathOf(oldVals), vpathOf(newVals))
	n.fsys.ids.ClearLeafHintsForParentLocked(n.ino())
	if !segmentsEqual(n.segments, newDir.segments) {
		n.fsys.ids.ClearLeafHintsForParentLocked(newDir.ino())
	}

	n.fsys.invalidateEntry(n.ino(), name)
	n.fsys.invalidateEntry(newDir.ino(), newName)
	return 0
}

func (n *DirNode) renameLeaf(newDir *DirNode, name, newName string) syscall.Errno {
	parentIno := n.ino()
	newParentIno := newDir.ino()

	srcPath, ok := n.fsys.ids.LeafHint(parentIno, name)
	if !ok {
		rows, names, err := n.listLeaves()
		if err != nil {
			return fserr.ToErrno(err)
		}
		for i, candidate := range names {
			n.fsys.ids.SetLeafHint(parentIno, candidate, rows[i].SrcPath)
			if candidate == name {
				srcPath = rows[i].SrcPath
				ok = true
			}
		}
	}
	if !ok {
		return fserr.ErrNoEnt
	}

	parsed, err := n.fsys.engine.Template().Parse(newName)
	if err != nil {
		return fserr.ToErrno(err)
	}
	for key, value := range parsed {
		if !n.fsys.plug.IsValidMetadata(key, value) {
			return fserr.ErrInval
		}
	}

	row, err := n.fsys.cat.GetEntry(srcPath)
	if err != nil {
		return fserr.ToErrno(err)
	}
	target := make(map[string]string, len(row.Values))
	for k, v := range row.Values {
		target[k] = v
	}
	for i, key := range n.fsys.engine.DirTree() {
		target[key] = newDir.segments[i]
	}
	for key, value := range parsed {
		target[key] = value
	}

	if err := n.fsys.plug.WriteMetadata(srcPath, target); err != nil {
		var perr *fserr.PluginError
		var errno syscall.Errno
		if !errors.As(err, &perr) && !errors.As(err, &errno) {
			return fserr.ErrInval
		}
		return fserr.ToErrno(err)
	}

	n.fsys.ids.Lock()
	defer n.fsys.ids.Unlock()

	if err := n.fsys.cat.AddEntry(srcPath, row.SrcInode, target); err != nil {
		return fserr.ToErrno(err)
	}
	if !segmentsEqual(n.segments, newDir.segments) {
		// Moving a leaf to a different parent changes the ancestor
		// dirtree values (genre/artist/...) stamped onto this row, so
		// the view tree's distinct tuples must be reloaded; a same-parent
		// rename only ever touches the leaf's own fn_gen fields, which
		// the view tree doesn't index.
		if err := n.fsys.rebuildView(); err != nil {
			return fserr.ErrIO
		}
	}
	n.fsys.ids.RenameLeafHintLocked(parentIno, name, newParentIno, newName)
	n.fsys.ids.ReconcileDuplicateSuffixLocked(uint64(row.SrcInode), vpathOf(appendSeg(newDir.segments, newName)))

	n.fsys.invalidateEntry(parentIno, name)
	n.fsys.invalidateEntry(newParentIno, newName)
	n.fsys.invalidateInode(uint64(row.SrcInode))
	return 0
}

func (n *DirNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = 4096
	out.Blocks = 1 << 20
	out.Bfree = 1 << 19
	out.Bavail = 1 << 19
	out.Files = 1 << 16
	out.Ffree = 1 << 15
	out.NameLen = 255
	return 0
}

func (n *LeafNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ino := n.ino()
	if fd, ok := n.fsys.ids.FdForInode(ino); ok {
		var st syscall.Stat_t
		if err := syscall.Fstat(fd, &st); err == nil {
			out.Attr.FromStat(&st)
			out.Attr.Ino = ino
			return 0
		}
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(n.srcPath, &st); err != nil {
		return fserr.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	out.Attr.Ino = ino
	return 0
}

func (n *LeafNode) ino() uint64 { return n.EmbeddedInode().StableAttr().Ino }

// Open rejects any attempt to open for writing — libfs content is
// read-only; the only way to mutate a file is a rename that rewrites its
// tags, per spec.md §4.1's "read-and-rename-only" scope.
func (n *LeafNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, fserr.ErrReadOnly
	}
	ino := n.ino()
	fd, err := n.fsys.ids.OpenFd(ino, func() (int, error) {
		return syscall.Open(n.srcPath, syscall.O_RDONLY, 0)
	})
	if err != nil {
		return nil, 0, fserr.ToErrno(err)
	}
	return &fileHandle{fd: fd}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *LeafNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fh, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	got, err := syscall.Pread(fh.fd, dest, off)
	if err != nil {
		return nil, fserr.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:got]), 0
}

func (n *LeafNode) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	fh, ok := f.(*fileHandle)
	if !ok {
		return 0
	}
	if closed, _ := n.fsys.ids.ReleaseFd(fh.fd); closed {
		syscall.Close(fh.fd)
	}
	return 0
}
