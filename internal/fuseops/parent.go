package fuseops

import (
	"context"
	"path/filepath"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cghanke/libfs/internal/fserr"
)

// mountParentNode answers stat(2) on the mount root's own ".." entry with
// the real attributes of the mountpoint's OS-level parent directory,
// mirroring the original implementation's MOUNTPOINT_PARENT sentinel in
// get_contents_by_vpath: without it, ".." at the mount root has nothing
// sensible to resolve to, since the root vnode carries no parent of its
// own in the view tree. Nothing below this node is browsable through
// libfs; a shell that cds into it has left the mount.
type mountParentNode struct {
	fs.Inode
	realPath string
}

var _ fs.NodeGetattrer = (*mountParentNode)(nil)

func (n *mountParentNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var st syscall.Stat_t
	if err := syscall.Lstat(n.realPath, &st); err != nil {
		return fserr.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return 0
}

// lookupMountParent resolves the mount root's ".." per spec.md's
// MOUNTPOINT_PARENT sentinel. The kernel VFS normally resolves ".." at a
// mount boundary without ever issuing this lookup; this exists for FUSE
// clients/mount options that do forward it.
func (n *DirNode) lookupMountParent(ctx context.Context, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.fsys.mountpoint == "" {
		return nil, fserr.ErrNoEnt
	}
	realParent := filepath.Dir(n.fsys.mountpoint)
	var st syscall.Stat_t
	if err := syscall.Lstat(realParent, &st); err != nil {
		return nil, fserr.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	out.Attr.Ino = uint64(st.Ino)
	child := &mountParentNode{realPath: realParent}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: uint64(st.Ino)}), 0
}
