package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"labcore/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Store implements domain.DocumentStore over a database/sql handle.
type Store struct {
	db          *sql.DB
	dialect     Dialect
	entities    *Collection[domain.Entity]
	collections *Collection[domain.Collection]
	attributes  *Collection[domain.Attribute]
	activity    *Collection[domain.Activity]
	pending     *Collection[domain.PendingWrite]
}

// New creates the document tables when missing and returns a store over db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: create tables: %w", dialect.Name, err)
		}
	}
	return &Store{
		db:          db,
		dialect:     dialect,
		entities:    NewCollection[domain.Entity](db, dialect, domain.KindEntity),
		collections: NewCollection[domain.Collection](db, dialect, domain.KindCollection),
		attributes:  NewCollection[domain.Attribute](db, dialect, domain.KindAttribute),
		activity:    NewCollection[domain.Activity](db, dialect, domain.KindActivity),
		pending:     NewCollection[domain.PendingWrite](db, dialect, domain.KindPendingWrite),
	}, nil
}

func (s *Store) Entities() domain.DocumentCollection[domain.Entity]       { return s.entities }
func (s *Store) Collections() domain.DocumentCollection[domain.Collection] { return s.collections }
func (s *Store) Attributes() domain.DocumentCollection[domain.Attribute]   { return s.attributes }
func (s *Store) Activity() domain.DocumentCollection[domain.Activity]      { return s.activity }
func (s *Store) PendingWrites() domain.DocumentCollection[domain.PendingWrite] {
	return s.pending
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close(context.Context) error { return s.db.Close() }

// Collection stores documents of one kind in the table named after the kind.
type Collection[T domain.Document] struct {
	db      *sql.DB
	dialect Dialect
	kind    domain.Kind
	table   string
}

// NewCollection returns a collection for kind. The table must already exist.
func NewCollection[T domain.Document](db *sql.DB, dialect Dialect, kind domain.Kind) *Collection[T] {
	return &Collection[T]{db: db, dialect: dialect, kind: kind, table: string(kind)}
}

func (c *Collection[T]) ph(n int) string { return c.dialect.Placeholder(n) }

func (c *Collection[T]) decode(raw []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%s: decode %s: %w", c.dialect.Name, c.kind, err)
	}
	return doc, nil
}

// FindOne loads the document with id.
func (c *Collection[T]) FindOne(ctx context.Context, id string) (T, bool, error) {
	var (
		zero T
		raw  []byte
	)
	err := c.db.QueryRowContext(ctx, "SELECT doc FROM "+c.table+" WHERE id = "+c.ph(1), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("%s: find %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	doc, err := c.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return doc, true, nil
}

// InsertOne stores a new document.
func (c *Collection[T]) InsertOne(ctx context.Context, doc T) error {
	id := doc.DocumentID()
	if id == "" {
		return fmt.Errorf("%w: %s document without id", domain.ErrInvalid, c.kind)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", c.dialect.Name, c.kind, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, owner, doc) VALUES (%s)", c.table, c.dialect.placeholders(1, 3))
	if _, err := c.db.ExecContext(ctx, query, id, doc.DocumentOwner(), string(raw)); err != nil {
		if c.dialect.IsUniqueViolation != nil && c.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s", domain.ErrDuplicateID, c.kind, id)
		}
		return fmt.Errorf("%s: insert %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	return nil
}

// UpdateOne applies patch in a read-modify-write transaction.
func (c *Collection[T]) UpdateOne(ctx context.Context, id string, patch domain.Patch[T]) (res domain.UpdateResult, retErr error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%s: begin: %w", c.dialect.Name, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var raw []byte
	err = tx.QueryRowContext(ctx, "SELECT doc FROM "+c.table+" WHERE id = "+c.ph(1)+c.dialect.LockClause, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return res, tx.Rollback()
	}
	if err != nil {
		return res, fmt.Errorf("%s: load %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	current, err := c.decode(raw)
	if err != nil {
		return res, err
	}
	res.Matched = 1
	next := patch.Apply(current)
	if domain.SameDocument(current, next) {
		return res, tx.Rollback()
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return res, fmt.Errorf("%s: encode %s: %w", c.dialect.Name, c.kind, err)
	}
	query := fmt.Sprintf("UPDATE %s SET owner = %s, doc = %s WHERE id = %s", c.table, c.ph(1), c.ph(2), c.ph(3))
	if _, err := tx.ExecContext(ctx, query, next.DocumentOwner(), string(encoded), id); err != nil {
		return res, fmt.Errorf("%s: update %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("%s: commit: %w", c.dialect.Name, err)
	}
	res.Modified = 1
	return res, nil
}

// DeleteOne removes the document with id.
func (c *Collection[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	result, err := c.db.ExecContext(ctx, "DELETE FROM "+c.table+" WHERE id = "+c.ph(1), id)
	if err != nil {
		return false, fmt.Errorf("%s: delete %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: delete %s %s: %w", c.dialect.Name, c.kind, id, err)
	}
	return n > 0, nil
}

// Find returns matching documents in insertion order.
func (c *Collection[T]) Find(ctx context.Context, filter domain.Filter) ([]T, error) {
	query, args := c.dialect.findQuery(c.table, filter)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: find %s: %w", c.dialect.Name, c.kind, err)
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", c.dialect.Name, c.kind, err)
		}
		doc, err := c.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate %s: %w", c.dialect.Name, c.kind, err)
	}
	return out, nil
}
