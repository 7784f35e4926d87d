// Package catalog is the persistent record of every known source file
// (spec.md §4.3): the "files", "views" and "defaults" tables, plus the
// CRUD operations the View Engine and Operations Layer are built on.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cghanke/libfs/internal/store"
)

const (
	FilesTable    = "files"
	ViewsTable    = "views"
	DefaultsTable = "defaults"

	SrcPathKey  = "src_path"
	SrcInodeKey = "src_inode"

	// Unknown is the sentinel value substituted for missing or empty
	// metadata fields, per spec.md's Catalog Row entity.
	Unknown = "Unknown"

	// DefaultViewName names the view installed at library creation from
	// the plugin's default_view, per spec.md's View entity lifecycle.
	DefaultViewName = "default"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("catalog: not found")

// View is the user-selectable (dirtree, fn_gen) pair of spec.md §3/GLOSSARY.
type View struct {
	DirTree []string `json:"dirtree"`
	FnGen   string   `json:"fn_gen"`
}

// Magic is the library magic row of spec.md §3: the active plugin name,
// the plugin's valid keys, and the default view, written once at library
// creation and immutable across mounts (spec.md §4.3, §6).
type Magic struct {
	Plugin      string   `json:"plugin"`
	ValidKeys   []string `json:"valid_keys"`
	DefaultView View     `json:"default_view"`
}

// Catalog is the persistent record of every known source file, backed by
// a store.Store. Row identity is (src_path, src_inode) per spec.md §3.
type Catalog struct {
	store           *store.Store
	magic           Magic
	orderedFileKeys []string // valid_keys ∪ {src_path, src_inode}, in files-table column order
}

// Bootstrap creates a brand-new library: the defaults/views/files tables,
// per spec.md §4.3's setup_db, and installs magic.DefaultView as the
// "default" view. Mirrors the original's BusinessLogic.setup_db.
func Bootstrap(s *store.Store, magic Magic) (*Catalog, error) {
	defaultsJSON, err := json.Marshal(magic)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal magic: %w", err)
	}
	if err := s.ExecuteWrite(fmt.Sprintf("CREATE TABLE %s (json TEXT)", DefaultsTable)); err != nil {
		return nil, fmt.Errorf("catalog: create %s: %w", DefaultsTable, err)
	}
	if err := s.ExecuteWrite(fmt.Sprintf("INSERT INTO %s (json) VALUES (?)", DefaultsTable), string(defaultsJSON)); err != nil {
		return nil, fmt.Errorf("catalog: seed %s: %w", DefaultsTable, err)
	}

	if err := s.ExecuteWrite(fmt.Sprintf("CREATE TABLE %s (name TEXT UNIQUE, json TEXT)", ViewsTable)); err != nil {
		return nil, fmt.Errorf("catalog: create %s: %w", ViewsTable, err)
	}
	viewJSON, err := json.Marshal(magic.DefaultView)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal default view: %w", err)
	}
	if err := s.ExecuteWrite(fmt.Sprintf("INSERT INTO %s (name, json) VALUES (?, ?)", ViewsTable), DefaultViewName, string(viewJSON)); err != nil {
		return nil, fmt.Errorf("catalog: seed %s: %w", ViewsTable, err)
	}

	cols := append([]string{SrcPathKey}, SrcInodeKey)
	colDefs := []string{
		store.QuoteIdent(SrcPathKey) + " TEXT UNIQUE",
		store.QuoteIdent(SrcInodeKey) + " INTEGER UNIQUE",
	}
	for _, k := range magic.ValidKeys {
		colDefs = append(colDefs, store.QuoteIdent(k)+" TEXT")
		cols = append(cols, k)
	}
	createFiles := fmt.Sprintf("CREATE TABLE %s (%s)", FilesTable, strings.Join(colDefs, ", "))
	if err := s.ExecuteWrite(createFiles); err != nil {
		return nil, fmt.Errorf("catalog: create %s: %w", FilesTable, err)
	}

	return &Catalog{store: s, magic: magic, orderedFileKeys: cols}, nil
}

// Open loads an existing library's magic row and validates the schema
// invariants of spec.md §3 ("Catalog completeness"): mismatch is fatal at
// mount, per spec.md §7.
func Open(s *store.Store) (*Catalog, error) {
	rows, err := s.Execute(fmt.Sprintf("SELECT json FROM %s", DefaultsTable))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", DefaultsTable, err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("catalog: expected exactly one %s row, got %d", DefaultsTable, len(rows))
	}
	var magic Magic
	if err := json.Unmarshal([]byte(toString(rows[0][0])), &magic); err != nil {
		return nil, fmt.Errorf("catalog: parse magic: %w", err)
	}

	cols, err := s.Columns(FilesTable)
	if err != nil {
		return nil, fmt.Errorf("catalog: columns of %s: %w", FilesTable, err)
	}
	c := &Catalog{store: s, magic: magic, orderedFileKeys: cols}
	if err := c.checkConsistency(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkConsistency enforces spec.md §3's "Catalog completeness" invariant:
// columns(files) = valid_keys ∪ {src_path, src_inode}, order-insensitive.
func (c *Catalog) checkConsistency() error {
	have := map[string]bool{}
	for _, col := range c.orderedFileKeys {
		have[col] = true
	}
	for _, mandatory := range []string{SrcPathKey, SrcInodeKey} {
		if !have[mandatory] {
			return fmt.Errorf("catalog: mandatory column %q missing from %s", mandatory, FilesTable)
		}
	}
	want := map[string]bool{SrcPathKey: true, SrcInodeKey: true}
	for _, k := range c.magic.ValidKeys {
		want[k] = true
		if !have[k] {
			return fmt.Errorf("catalog: valid key %q has no column in %s (wrong plugin for this library?)", k, FilesTable)
		}
	}
	for col := range have {
		if !want[col] {
			return fmt.Errorf("catalog: column %q in %s is not a valid key", col, FilesTable)
		}
	}
	return nil
}

func (c *Catalog) Magic() Magic        { return c.magic }
func (c *Catalog) ValidKeys() []string { return c.magic.ValidKeys }

// GetView returns the named view, or ErrNotFound.
func (c *Catalog) GetView(name string) (View, error) {
	rows, err := c.store.Execute(fmt.Sprintf("SELECT json FROM %s WHERE name = ?", ViewsTable), name)
	if err != nil {
		return View{}, err
	}
	if len(rows) == 0 {
		return View{}, ErrNotFound
	}
	var v View
	if err := json.Unmarshal([]byte(toString(rows[0][0])), &v); err != nil {
		return View{}, fmt.Errorf("catalog: parse view %q: %w", name, err)
	}
	return v, nil
}

// SetView persists a new named view, after validating that every dirtree
// key is one of the library's valid keys (spec.md §4.3).
func (c *Catalog) SetView(name string, v View) error {
	valid := map[string]bool{}
	for _, k := range c.magic.ValidKeys {
		valid[k] = true
	}
	for _, k := range v.DirTree {
		if !valid[k] {
			return fmt.Errorf("catalog: view %q: key %q is not valid for this library", name, k)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.store.ExecuteWrite(fmt.Sprintf("INSERT INTO %s (name, json) VALUES (?, ?)", ViewsTable), name, string(data))
}

// AddEntry inserts (or, on conflict, updates) a files row, coercing empty
// values to Unknown, per spec.md §4.3's add_entry.
func (c *Catalog) AddEntry(srcPath string, srcInode int64, metadata map[string]string) error {
	values := make([]any, len(c.orderedFileKeys))
	for i, key := range c.orderedFileKeys {
		switch key {
		case SrcPathKey:
			values[i] = srcPath
		case SrcInodeKey:
			values[i] = srcInode
		default:
			v := metadata[key]
			if v == "" {
				v = Unknown
			}
			values[i] = v
		}
	}

	placeholders := strings.Repeat("?,", len(values))
	placeholders = placeholders[:len(placeholders)-1]
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", FilesTable, placeholders)
	err := c.store.ExecuteWrite(insertSQL, values...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrUniqueViolation) {
		return err
	}

	var setClauses []string
	for _, key := range c.orderedFileKeys {
		setClauses = append(setClauses, store.QuoteIdent(key)+" = ?")
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", FilesTable, strings.Join(setClauses, ", "), store.QuoteIdent(SrcPathKey))
	return c.store.ExecuteWrite(updateSQL, append(values, srcPath)...)
}

// RemoveEntry deletes the row for srcPath.
func (c *Catalog) RemoveEntry(srcPath string) error {
	return c.store.ExecuteWrite(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", FilesTable, store.QuoteIdent(SrcPathKey)), srcPath)
}

// FileRow is one source-file record as returned by catalog queries: the
// valid-key metadata plus source identity.
type FileRow struct {
	SrcPath  string
	SrcInode int64
	Values   map[string]string
}

// GetEntry returns the full row for srcPath.
func (c *Catalog) GetEntry(srcPath string) (FileRow, error) {
	cols := append([]string{SrcPathKey, SrcInodeKey}, c.magic.ValidKeys...)
	quoted := make([]string, len(cols))
	for i, c2 := range cols {
		quoted[i] = store.QuoteIdent(c2)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(quoted, ", "), FilesTable, store.QuoteIdent(SrcPathKey))
	rows, err := c.store.Execute(q, srcPath)
	if err != nil {
		return FileRow{}, err
	}
	if len(rows) == 0 {
		return FileRow{}, ErrNotFound
	}
	return c.rowToFileRow(rows[0], cols), nil
}

func (c *Catalog) rowToFileRow(row store.Row, cols []string) FileRow {
	fr := FileRow{Values: map[string]string{}}
	for i, col := range cols {
		switch col {
		case SrcPathKey:
			fr.SrcPath = toString(row[i])
		case SrcInodeKey:
			fr.SrcInode = toInt64(row[i])
		default:
			fr.Values[col] = toString(row[i])
		}
	}
	return fr
}

// SrcPathByInode returns the src_path of the row with the given src_inode.
func (c *Catalog) SrcPathByInode(inode int64) (string, error) {
	rows, err := c.store.Execute(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", store.QuoteIdent(SrcPathKey), FilesTable, store.QuoteIdent(SrcInodeKey)), inode)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return toString(rows[0][0]), nil
}

// InodeBySrcPath returns the src_inode of the row with the given src_path.
func (c *Catalog) InodeBySrcPath(srcPath string) (int64, error) {
	rows, err := c.store.Execute(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", store.QuoteIdent(SrcInodeKey), FilesTable, store.QuoteIdent(SrcPathKey)), srcPath)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNotFound
	}
	return toInt64(rows[0][0]), nil
}

// AllSrcPaths returns every known src_path, used by the scanner's
// --remove_obsolete pass.
func (c *Catalog) AllSrcPaths() ([]string, error) {
	rows, err := c.store.Execute(fmt.Sprintf("SELECT %s FROM %s", store.QuoteIdent(SrcPathKey), FilesTable))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = toString(r[0])
	}
	return out, nil
}

// DistinctTuples returns every distinct combination of values across
// keys, used by the View Engine to (re)build its prefix tree from
// "SELECT DISTINCT dirtree FROM files" (spec.md §4.4).
func (c *Catalog) DistinctTuples(keys []string) ([][]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = store.QuoteIdent(k)
	}
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s", strings.Join(quoted, ", "), FilesTable)
	rows, err := c.store.Execute(q)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		tuple := make([]string, len(r))
		for j, v := range r {
			tuple[j] = toString(v)
		}
		out[i] = tuple
	}
	return out, nil
}

// ListByPrefix returns every row whose dirtree columns match prefixVals
// (one value per entry in dirtree, in order), for a leaf-level readdir.
func (c *Catalog) ListByPrefix(dirtree []string, prefixVals []string) ([]FileRow, error) {
	if len(dirtree) != len(prefixVals) {
		return nil, fmt.Errorf("catalog: dirtree/prefix length mismatch (%d vs %d)", len(dirtree), len(prefixVals))
	}
	cols := append([]string{SrcPathKey, SrcInodeKey}, c.magic.ValidKeys...)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = store.QuoteIdent(col)
	}

	var where []string
	var args []any
	for i, k := range dirtree {
		where = append(where, store.QuoteIdent(k)+" = ?")
		args = append(args, prefixVals[i])
	}

	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), FilesTable)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := c.store.Execute(q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]FileRow, len(rows))
	for i, r := range rows {
		out[i] = c.rowToFileRow(r, cols)
	}
	return out, nil
}

// UpdateColumns rewrites, for every row matching oldVals at the positions
// named by dirtree, the columns whose value differs between oldVals and
// newVals — spec.md §4.3's update_columns, used by a directory rename.
func (c *Catalog) UpdateColumns(dirtree []string, oldVals, newVals []string) error {
	if len(oldVals) != len(newVals) {
		return fmt.Errorf("catalog: UpdateColumns: len(old)=%d != len(new)=%d", len(oldVals), len(newVals))
	}
	equal := true
	var setClauses []string
	var setArgs []any
	var whereClauses []string
	var whereArgs []any
	for i, key := range dirtree[:len(oldVals)] {
		whereClauses = append(whereClauses, store.QuoteIdent(key)+" = ?")
		whereArgs = append(whereArgs, oldVals[i])
		if oldVals[i] != newVals[i] {
			equal = false
			setClauses = append(setClauses, store.QuoteIdent(key)+" = ?")
			setArgs = append(setArgs, newVals[i])
		}
	}
	if equal {
		return fmt.Errorf("catalog: UpdateColumns: old and new tuples are identical")
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", FilesTable, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND "))
	return c.store.ExecuteWrite(q, append(setArgs, whereArgs...)...)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
