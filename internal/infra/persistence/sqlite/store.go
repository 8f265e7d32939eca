// Package sqlite provides a SQLite-backed document store using the pure Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"labcore/internal/infra/persistence/sqldoc"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultPath = "labcore.db"

// Dialect describes SQLite for the shared document tables.
var Dialect = sqldoc.Dialect{
	Name:              "sqlite",
	DocumentType:      "BLOB",
	SeqColumn:         "seq INTEGER PRIMARY KEY AUTOINCREMENT",
	Placeholder:       sqldoc.QuestionPlaceholder,
	IsUniqueViolation: isUniqueViolation,
}

// Store is a document store persisted to a single SQLite database file.
type Store struct {
	*sqldoc.Store
	path string
}

// Open opens (creating when needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps the read and write of an update on the same lock.
	db.SetMaxOpenConns(1)
	store, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
