// Package scanner implements the `libfs update` collaborator: walking a
// source directory, feeding every recognised file through a plugin into
// the catalog, and (with --remove_obsolete) dropping catalog rows whose
// source file has vanished. Grounded on the original implementation's
// scripts/libfs.py update-command wiring (spec.md §6, SPEC_FULL.md §3).
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/plugin"
)

// Result summarises one Scan invocation, for the update subcommand's
// human-readable progress output.
type Result struct {
	Scanned int
	Added   int
	Skipped int
	Removed int
}

// Scanner walks a source tree into a catalog using a single plugin.
type Scanner struct {
	catalog *catalog.Catalog
	plugin  plugin.Plugin
	logger  zerolog.Logger
}

// New constructs a Scanner over cat using p to recognise and read files.
func New(cat *catalog.Catalog, p plugin.Plugin, logger zerolog.Logger) *Scanner {
	return &Scanner{catalog: cat, plugin: p, logger: logger}
}

// Scan walks sourceDir, adding or updating a catalog row for every file
// the plugin recognises. When removeObsolete is set, every previously
// known src_path that no longer exists on disk is removed afterwards.
func (s *Scanner) Scan(sourceDir string, removeObsolete bool) (Result, error) {
	var result Result

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("scan: walk error")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		result.Scanned++

		metadata, err := s.plugin.ReadMetadata(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("scan: read_metadata failed")
			result.Skipped++
			return nil
		}

		inode, err := inodeOf(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("scan: cannot determine inode")
			result.Skipped++
			return nil
		}

		if err := s.catalog.AddEntry(path, inode, metadata); err != nil {
			return fmt.Errorf("scan: add_entry %s: %w", path, err)
		}
		result.Added++
		return nil
	})
	if err != nil {
		return result, err
	}

	if removeObsolete {
		removed, err := s.removeObsolete()
		if err != nil {
			return result, err
		}
		result.Removed = removed
	}

	return result, nil
}

func (s *Scanner) removeObsolete() (int, error) {
	paths, err := s.catalog.AllSrcPaths()
	if err != nil {
		return 0, fmt.Errorf("scan: all_src_paths: %w", err)
	}

	removed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if err := s.catalog.RemoveEntry(path); err != nil {
				return removed, fmt.Errorf("scan: remove_entry %s: %w", path, err)
			}
			removed++
			s.logger.Info().Str("path", path).Msg("scan: removed obsolete entry")
		}
	}
	return removed, nil
}

func inodeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("scanner: cannot determine inode for %s", path)
	}
	return int64(st.Ino), nil
}
