// Package sqldoc stores domain documents as JSON in one SQL table per kind. It
// backs both the sqlite and postgres persistence packages, which differ only
// in their Dialect.
package sqldoc

import (
	"fmt"
	"labcore/pkg/domain"
	"strings"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	// Name is used in error messages.
	Name string
	// DocumentType is the column type holding the JSON document.
	DocumentType string
	// SeqColumn declares the insertion order column including its key clause.
	SeqColumn string
	// LockClause is appended to the read of a read-modify-write update.
	LockClause string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

// QuestionPlaceholder renders "?" for every parameter.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n".
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// Kinds lists the document kinds that get a table.
var Kinds = []domain.Kind{
	domain.KindEntity,
	domain.KindCollection,
	domain.KindAttribute,
	domain.KindActivity,
	domain.KindPendingWrite,
}

// Schema returns the DDL statements creating every document table.
func (d Dialect) Schema() []string {
	stmts := make([]string, 0, len(Kinds))
	for _, kind := range Kinds {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	id TEXT NOT NULL UNIQUE,
	owner TEXT NOT NULL DEFAULT '',
	doc %s NOT NULL
)`, kind, d.SeqColumn, d.DocumentType))
	}
	return stmts
}

func (d Dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// findQuery builds the SELECT used by Find and returns it with its arguments.
func (d Dialect) findQuery(table string, filter domain.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		where = append(where, fmt.Sprintf("id IN (%s)", d.placeholders(len(args)+1, len(filter.IDs))))
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Owner != "" {
		where = append(where, "owner = "+d.Placeholder(len(args)+1))
		args = append(args, filter.Owner)
	}
	query := "SELECT doc FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}
