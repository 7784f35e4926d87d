package catalog

import (
	"path/filepath"
	"testing"

	"github.com/cghanke/libfs/internal/store"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lib.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	magic := Magic{
		Plugin:    "audio",
		ValidKeys: []string{"artist", "album", "genre"},
		DefaultView: View{
			DirTree: []string{"artist", "album"},
			FnGen:   "%{artist} - %{album}",
		},
	}
	c, err := Bootstrap(s, magic)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return c
}

func TestBootstrapAndOpenRoundtrip(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "lib.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	magic := Magic{
		Plugin:      "audio",
		ValidKeys:   []string{"artist", "album"},
		DefaultView: View{DirTree: []string{"artist"}, FnGen: "%{album}"},
	}
	if _, err := Bootstrap(s, magic); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	c, err := Open(s)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Magic().Plugin != "audio" {
		t.Errorf("Plugin = %q, want audio", c.Magic().Plugin)
	}
	v, err := c.GetView(DefaultViewName)
	if err != nil {
		t.Fatalf("GetView: %v", err)
	}
	if len(v.DirTree) != 1 || v.DirTree[0] != "artist" {
		t.Errorf("default view dirtree = %v", v.DirTree)
	}
}

func TestOpenRejectsMismatchedColumns(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "lib.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	magic := Magic{ValidKeys: []string{"artist"}, DefaultView: View{DirTree: []string{"artist"}, FnGen: "%{artist}"}}
	if _, err := Bootstrap(s, magic); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := s.ExecuteWrite("ALTER TABLE files ADD COLUMN extra TEXT"); err != nil {
		t.Fatalf("alter: %v", err)
	}

	if _, err := Open(s); err == nil {
		t.Fatal("expected error for mismatched columns")
	}
}

func TestAddEntryCoercesEmptyToUnknown(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 42, map[string]string{"artist": "Rush", "album": ""}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	row, err := c.GetEntry("/music/a.mp3")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if row.SrcInode != 42 {
		t.Errorf("SrcInode = %d, want 42", row.SrcInode)
	}
	if row.Values["album"] != Unknown {
		t.Errorf("album = %q, want %q", row.Values["album"], Unknown)
	}
	if row.Values["genre"] != Unknown {
		t.Errorf("genre = %q, want %q", row.Values["genre"], Unknown)
	}
}

func TestAddEntryUpdatesOnConflict(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Rush"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Yes"}); err != nil {
		t.Fatalf("AddEntry (update): %v", err)
	}
	row, err := c.GetEntry("/music/a.mp3")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if row.Values["artist"] != "Yes" {
		t.Errorf("artist = %q, want Yes", row.Values["artist"])
	}
}

func TestRemoveEntry(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Rush"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.RemoveEntry("/music/a.mp3"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if _, err := c.GetEntry("/music/a.mp3"); err != ErrNotFound {
		t.Fatalf("GetEntry after remove = %v, want ErrNotFound", err)
	}
}

func TestSrcPathAndInodeLookups(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 7, map[string]string{"artist": "Rush"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	path, err := c.SrcPathByInode(7)
	if err != nil || path != "/music/a.mp3" {
		t.Errorf("SrcPathByInode = (%q, %v), want /music/a.mp3", path, err)
	}
	inode, err := c.InodeBySrcPath("/music/a.mp3")
	if err != nil || inode != 7 {
		t.Errorf("InodeBySrcPath = (%d, %v), want 7", inode, err)
	}
}

func TestUpdateColumnsRewritesMatchingRows(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Rush", "album": "2112"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.AddEntry("/music/b.mp3", 2, map[string]string{"artist": "Rush", "album": "2112"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.AddEntry("/music/c.mp3", 3, map[string]string{"artist": "Yes", "album": "Fragile"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	err := c.UpdateColumns([]string{"artist", "album"}, []string{"Rush", "2112"}, []string{"Rush", "Moving Pictures"})
	if err != nil {
		t.Fatalf("UpdateColumns: %v", err)
	}

	row, err := c.GetEntry("/music/a.mp3")
	if err != nil || row.Values["album"] != "Moving Pictures" {
		t.Errorf("a.mp3 album = %q, want Moving Pictures (err=%v)", row.Values["album"], err)
	}
	row2, err := c.GetEntry("/music/b.mp3")
	if err != nil || row2.Values["album"] != "Moving Pictures" {
		t.Errorf("b.mp3 album = %q, want Moving Pictures (err=%v)", row2.Values["album"], err)
	}
	row3, err := c.GetEntry("/music/c.mp3")
	if err != nil || row3.Values["album"] != "Fragile" {
		t.Errorf("c.mp3 album changed unexpectedly: %q (err=%v)", row3.Values["album"], err)
	}
}

func TestUpdateColumnsRejectsIdenticalTuples(t *testing.T) {
	c := newTestCatalog(t)
	err := c.UpdateColumns([]string{"artist"}, []string{"Rush"}, []string{"Rush"})
	if err == nil {
		t.Fatal("expected error for identical tuples")
	}
}

func TestDistinctTuplesAndListByPrefix(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Rush", "album": "2112"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.AddEntry("/music/b.mp3", 2, map[string]string{"artist": "Rush", "album": "Fly By Night"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	tuples, err := c.DistinctTuples([]string{"artist"})
	if err != nil {
		t.Fatalf("DistinctTuples: %v", err)
	}
	if len(tuples) != 1 || tuples[0][0] != "Rush" {
		t.Errorf("tuples = %v, want [[Rush]]", tuples)
	}

	rows, err := c.ListByPrefix([]string{"artist"}, []string{"Rush"})
	if err != nil {
		t.Fatalf("ListByPrefix: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListByPrefix returned %d rows, want 2", len(rows))
	}
}

func TestSetViewRejectsUnknownKey(t *testing.T) {
	c := newTestCatalog(t)
	err := c.SetView("byGenre", View{DirTree: []string{"nonexistent"}, FnGen: "%{artist}"})
	if err == nil {
		t.Fatal("expected error for view referencing unknown key")
	}
}

func TestAllSrcPaths(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.AddEntry("/music/a.mp3", 1, map[string]string{"artist": "Rush"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := c.AddEntry("/music/b.mp3", 2, map[string]string{"artist": "Yes"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	paths, err := c.AllSrcPaths()
	if err != nil {
		t.Fatalf("AllSrcPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("AllSrcPaths = %v, want 2 entries", paths)
	}
}
