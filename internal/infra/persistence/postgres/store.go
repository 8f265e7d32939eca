// Package postgres provides a Postgres-backed document store that keeps each
// document as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"labcore/internal/infra/persistence/sqldoc"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver   = "pgx"
	defaultDSN      = "postgres://localhost/labcore?sslmode=disable"
	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect describes Postgres for the shared document tables.
var Dialect = sqldoc.Dialect{
	Name:              "postgres",
	DocumentType:      "JSONB",
	SeqColumn:         "seq BIGSERIAL PRIMARY KEY",
	LockClause:        " FOR UPDATE",
	Placeholder:       sqldoc.DollarPlaceholder,
	IsUniqueViolation: isUniqueViolation,
}

// Store is a document store backed by Postgres.
type Store struct {
	*sqldoc.Store
}

// Open connects using dsn (falls back to defaultDSN), verifies connectivity and
// creates the document tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store}, nil
}

// OverrideSQLOpen swaps the sql.Open implementation used by Open and returns a
// restore function.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
