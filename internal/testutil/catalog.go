// Package testutil holds constructors shared by this module's package tests:
// a temp-file store and a bootstrapped catalog, mirroring the teacher's
// testutil/fixtures package's NewTestSQLiteStore/NewTestSQLiteRepository
// pair, adapted from the Linear API domain to the catalog/store domain.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/store"
)

// NewStore opens a fresh on-disk sqlite store under t.TempDir, closed
// automatically on test cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lib.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewCatalog bootstraps a fresh store with magic, returning the catalog.
func NewCatalog(t *testing.T, magic catalog.Magic) *catalog.Catalog {
	t.Helper()
	s := NewStore(t)
	c, err := catalog.Bootstrap(s, magic)
	if err != nil {
		t.Fatalf("catalog.Bootstrap: %v", err)
	}
	return c
}
