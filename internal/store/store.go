// Package store is the Storage Backend of spec.md §4.1: it opens a
// single-file relational store and exposes the small primitive operations
// (execute, columns, commit) the Catalog is built on. One connection per
// process; the engine above serialises all access per spec.md §5.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrUniqueViolation is the distinguishable conflict error spec.md §4.1
// requires: an INSERT that collides with a UNIQUE constraint.
var ErrUniqueViolation = errors.New("store: unique constraint violation")

// connStringRx parses "<scheme>://[user[:pw]][@host]/<db-path>" per
// spec.md §6's connection-string grammar.
var connStringRx = regexp.MustCompile(`^(\S+)://(?:([^:@/]*)(?::([^@/]*))?@)?(.*)$`)

// Store wraps a single sqlite3 connection. It is the only component that
// imports database/sql / the sqlite driver; everything above it goes
// through Execute/Columns/Commit.
type Store struct {
	db *sql.DB
}

// Open parses connString per spec.md §6 and opens (or, for a brand-new
// path, prepares to create) the backing database. A connection string
// that fails to parse falls back to embedded-single-file semantics when
// the named path or its parent directory exists, as spec.md §4.1
// specifies; anything else is a fatal, user-facing error (spec.md §7).
func Open(connString string) (*Store, error) {
	dbPath, scheme, err := resolvePath(connString)
	if err != nil {
		return nil, err
	}
	if scheme != "" && scheme != "sqlite3" && scheme != "sqlite" {
		return nil, fmt.Errorf("store: unsupported backend scheme %q", scheme)
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create directory for %s: %w", dbPath, err)
		}
	}

	escaped := strings.ReplaceAll(dbPath, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL on %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys on %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// resolvePath implements spec.md §6's connection-string grammar and its
// embedded-single-file fallback.
func resolvePath(connString string) (path string, scheme string, err error) {
	m := connStringRx.FindStringSubmatch(connString)
	if m != nil {
		return m[4], m[1], nil
	}

	// Parse failure: default to sqlite3-with-path when the path exists,
	// or its parent directory exists (so a brand-new library can be
	// created there).
	if _, statErr := os.Stat(connString); statErr == nil {
		return connString, "", nil
	}
	if _, statErr := os.Stat(filepath.Dir(connString)); statErr == nil {
		return connString, "", nil
	}
	return "", "", fmt.Errorf("store: cannot parse connection string %q", connString)
}

// Row is one result row, positional per the query's SELECT list.
type Row = []any

// Execute runs a statement and returns all result rows eagerly, matching
// the Python reference's execute_statment (spec.md §4.1). Params are
// always bound, never interpolated, per spec.md §9 open question (a).
func (s *Store) Execute(query string, params ...any) ([]Row, error) {
	rows, err := s.db.Query(query, params...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUniqueViolation
		}
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// ExecuteWrite runs a statement that does not return rows (INSERT/UPDATE/
// DELETE/CREATE TABLE). Unique-constraint conflicts are reported as
// ErrUniqueViolation so callers can implement the add_entry
// insert-then-fall-back-to-update pattern of spec.md §4.3.
func (s *Store) ExecuteWrite(query string, params ...any) error {
	_, err := s.db.Exec(query, params...)
	if err != nil && isUniqueViolation(err) {
		return ErrUniqueViolation
	}
	return err
}

// Columns returns the ordered column names of table, via PRAGMA
// table_info, per spec.md §4.1.
func (s *Store) Columns(table string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Commit flushes pending mutations. sqlite in the driver's default
// autocommit mode has nothing to flush per-statement; Commit exists so
// callers that batch work in a transaction (via WithTx) have a single,
// uniform place to call at the end of a logical operation.
func (s *Store) Commit() error {
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back otherwise.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DB exposes the underlying *sql.DB for components that need prepared
// statements or transactions beyond Execute/ExecuteWrite.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// quoteIdent backtick-quotes an identifier so that column/table names
// drawn from plugin-declared keys cannot be mistaken for SQL syntax, per
// spec.md §9 open question (a). Any backtick inside name is removed, not
// escaped.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "") + "`"
}

// QuoteIdent is exported for callers in internal/catalog that build
// identifier lists (column names from valid_keys) into DDL/DML strings.
func QuoteIdent(name string) string { return quoteIdent(name) }
