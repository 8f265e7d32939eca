package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the engine, stores, and resolvers.
var (
	// ErrNotFound reports a document that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAssociated reports an add of a reference that is already present.
	ErrAlreadyAssociated = errors.New("already associated")
	// ErrNotAssociated reports a remove of a reference that is absent.
	ErrNotAssociated = errors.New("not associated")
	// ErrWriteConflict reports a single-reference write that matched a document
	// but changed nothing, meaning a concurrent writer got there first.
	ErrWriteConflict = errors.New("write conflict")
	// ErrInvalid reports malformed input.
	ErrInvalid = errors.New("invalid input")
	// ErrCycle reports a collection nesting change that would form a cycle.
	ErrCycle = errors.New("collection cycle")
	// ErrDuplicateID reports an insert whose id is already taken.
	ErrDuplicateID = errors.New("duplicate id")
)

// NotFoundError identifies the missing document.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound constructs a NotFoundError.
func NotFound(kind Kind, id string) error {
	return NotFoundError{Kind: kind, ID: id}
}
