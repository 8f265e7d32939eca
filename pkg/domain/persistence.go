package domain

import (
	"context"
	"slices"
)

// Record is a Document that can produce an independent deep copy of itself.
type Record[T any] interface {
	Document
	Clone() T
}

// UpdateResult reports how many documents a single-document update matched and
// modified. Matched is 0 for an unknown id; Modified is 0 when the patch left
// the document unchanged.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Filter selects documents in Find. Zero fields match everything.
type Filter struct {
	IDs   []string
	Owner string
	Limit int
}

// Matches reports whether doc satisfies the id and owner constraints.
func (f Filter) Matches(doc Document) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, doc.DocumentID()) {
		return false
	}
	if f.Owner != "" && doc.DocumentOwner() != f.Owner {
		return false
	}
	return true
}

// DocumentCollection is the single-document store contract every backend
// implements. No operation spans more than one document.
type DocumentCollection[T Document] interface {
	FindOne(ctx context.Context, id string) (T, bool, error)
	InsertOne(ctx context.Context, doc T) error
	UpdateOne(ctx context.Context, id string, patch Patch[T]) (UpdateResult, error)
	DeleteOne(ctx context.Context, id string) (bool, error)
	Find(ctx context.Context, filter Filter) ([]T, error)
}

// DocumentStore groups the collections labcore persists.
type DocumentStore interface {
	Entities() DocumentCollection[Entity]
	Collections() DocumentCollection[Collection]
	Attributes() DocumentCollection[Attribute]
	Activity() DocumentCollection[Activity]
	PendingWrites() DocumentCollection[PendingWrite]
	Close(ctx context.Context) error
}
