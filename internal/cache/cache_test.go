package cache

import (
	"testing"
	"time"
)

func TestVdirInodeAllocatesMonotonically(t *testing.T) {
	c := New()
	a := c.VdirInode("/Rock")
	b := c.VdirInode("/Jazz")
	if a == b {
		t.Fatal("expected distinct inodes for distinct vpaths")
	}
	if a2 := c.VdirInode("/Rock"); a2 != a {
		t.Errorf("VdirInode(/Rock) second call = %d, want %d (stable)", a2, a)
	}
	if c.VdirInode("/") != RootInode {
		t.Error("root vpath should resolve to RootInode")
	}
}

func TestVpathAndInodeForVpath(t *testing.T) {
	c := New()
	inode := c.VdirInode("/Rock/Rush")
	v, ok := c.Vpath(inode)
	if !ok || v != "/Rock/Rush" {
		t.Errorf("Vpath(%d) = (%q, %v)", inode, v, ok)
	}
	got, ok := c.InodeForVpath("/Rock/Rush")
	if !ok || got != inode {
		t.Errorf("InodeForVpath = (%d, %v), want %d", got, ok, inode)
	}
}

func TestForgetEvictsAtZero(t *testing.T) {
	c := New()
	inode := c.VdirInode("/Rock")
	c.VdirInode("/Rock") // lookup count now 2

	if c.Forget(inode, 1) {
		t.Fatal("should not evict while count remains positive")
	}
	if !c.Forget(inode, 1) {
		t.Fatal("expected eviction once count reaches zero")
	}
	if _, ok := c.Vpath(inode); ok {
		t.Error("expected vpath to be gone after eviction")
	}
}

func TestForgetNeverEvictsRoot(t *testing.T) {
	c := New()
	if c.Forget(RootInode, 1000) {
		t.Fatal("root inode must never be evicted")
	}
}

func TestReconcileDuplicateSuffix(t *testing.T) {
	c := New()
	inode := c.VdirInode("/Rock/Track A (libfs:1)")
	c.ReconcileDuplicateSuffix(inode, "/Rock/Track A")

	v, ok := c.Vpath(inode)
	if !ok || v != "/Rock/Track A" {
		t.Errorf("Vpath after reconcile = (%q, %v), want /Rock/Track A", v, ok)
	}
	if _, ok := c.InodeForVpath("/Rock/Track A (libfs:1)"); ok {
		t.Error("old suffixed vpath should no longer resolve")
	}
}

func TestReconcileDuplicateSuffixIgnoresNonSuffixedPaths(t *testing.T) {
	c := New()
	inode := c.VdirInode("/Rock/Track A")
	c.ReconcileDuplicateSuffix(inode, "/Rock/Track B")
	v, _ := c.Vpath(inode)
	if v != "/Rock/Track A" {
		t.Errorf("reconcile should not fire without a duplicate suffix, got %q", v)
	}
}

func TestRenameDirPrefixRewritesAllDescendants(t *testing.T) {
	c := New()
	album := c.VdirInode("/Rock/Rush/2112")
	c.VdirInode("/Rock/Rush")
	c.VdirInode("/Rock/Yes/Fragile")

	c.Lock()
	c.RenameDirPrefix("/Rock/Rush", "/Rock/Rush (Remastered)")
	c.Unlock()

	v, ok := c.Vpath(album)
	if !ok || v != "/Rock/Rush (Remastered)/2112" {
		t.Errorf("album vpath after rename = (%q, %v)", v, ok)
	}
	if _, ok := c.InodeForVpath("/Rock/Yes/Fragile"); !ok {
		t.Error("unrelated vpath should be untouched")
	}
	if _, ok := c.InodeForVpath("/Rock/Rush/2112"); ok {
		t.Error("old prefix should no longer resolve")
	}
}

func TestLeafHints(t *testing.T) {
	c := New()
	c.SetLeafHint(5, "track.mp3", "/src/track.mp3")
	if got, ok := c.LeafHint(5, "track.mp3"); !ok || got != "/src/track.mp3" {
		t.Errorf("LeafHint = (%q, %v)", got, ok)
	}

	c.RenameLeafHint(5, "track.mp3", 5, "renamed.mp3")
	if _, ok := c.LeafHint(5, "track.mp3"); ok {
		t.Error("old leaf hint should be gone after rename")
	}
	if got, ok := c.LeafHint(5, "renamed.mp3"); !ok || got != "/src/track.mp3" {
		t.Errorf("LeafHint after rename = (%q, %v)", got, ok)
	}

	c.ClearLeafHintsForParent(5)
	if _, ok := c.LeafHint(5, "renamed.mp3"); ok {
		t.Error("expected leaf hints cleared for parent")
	}
}

func TestLockedVariantsDoNotDeadlockUnderAHeldLock(t *testing.T) {
	c := New()
	inode := c.VdirInode("/Rock/Track A (libfs:1)")
	c.SetLeafHint(5, "track.mp3", "/src/track.mp3")

	done := make(chan struct{})
	go func() {
		c.Lock()
		defer c.Unlock()
		c.ReconcileDuplicateSuffixLocked(inode, "/Rock/Track A")
		c.RenameLeafHintLocked(5, "track.mp3", 5, "renamed.mp3")
		c.ClearLeafHintsForParentLocked(5)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Locked variants deadlocked while the cache lock was already held")
	}
}

func TestOpenFdReusesAndReleases(t *testing.T) {
	c := New()
	opens := 0
	openFn := func() (int, error) { opens++; return 42, nil }

	fd1, err := c.OpenFd(7, openFn)
	if err != nil {
		t.Fatalf("OpenFd: %v", err)
	}
	fd2, err := c.OpenFd(7, openFn)
	if err != nil {
		t.Fatalf("OpenFd (reuse): %v", err)
	}
	if fd1 != fd2 || opens != 1 {
		t.Fatalf("expected fd reuse: fd1=%d fd2=%d opens=%d", fd1, fd2, opens)
	}

	if closed, _ := c.ReleaseFd(fd1); closed {
		t.Fatal("should not close while refcount > 0")
	}
	closed, inode := c.ReleaseFd(fd1)
	if !closed || inode != 7 {
		t.Fatalf("expected close at refcount 0, got closed=%v inode=%d", closed, inode)
	}

	if _, ok := c.FdForInode(7); ok {
		t.Error("expected fd mapping gone after release")
	}
}
