// Package storetest holds the behavioural contract shared by every
// domain.DocumentStore backend.
package storetest

import (
	"context"
	"errors"
	"labcore/pkg/domain"
	"testing"
	"time"
)

// Opener returns a fresh, empty store. Implementations register their own
// cleanup with t.
type Opener func(t *testing.T) domain.DocumentStore

// Run exercises the single-document contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	t.Run("FindOneMissing", func(t *testing.T) { findOneMissing(t, open(t)) })
	t.Run("InsertRejectsDuplicate", func(t *testing.T) { insertRejectsDuplicate(t, open(t)) })
	t.Run("UpdateReportsMatchedAndModified", func(t *testing.T) { updateCounts(t, open(t)) })
	t.Run("NestedDocumentsSurvive", func(t *testing.T) { nestedDocuments(t, open(t)) })
	t.Run("DeleteOne", func(t *testing.T) { deleteOne(t, open(t)) })
	t.Run("FindFilters", func(t *testing.T) { findFilters(t, open(t)) })
	t.Run("CollectionsAndJournal", func(t *testing.T) { collectionsAndJournal(t, open(t)) })
}

func findOneMissing(t *testing.T, store domain.DocumentStore) {
	_, ok, err := store.Entities().FindOne(context.Background(), "missing")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing entity to be absent")
	}
}

func insertRejectsDuplicate(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	e := domain.Entity{ID: "e1", Name: "Stock"}
	if err := store.Entities().InsertOne(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Entities().InsertOne(ctx, e); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func updateCounts(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	if err := store.Entities().InsertOne(ctx, domain.Entity{ID: "e1", Name: "Stock", Description: "a"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	desc := "b"
	res, err := store.Entities().UpdateOne(ctx, "e1", domain.EntityPatch{Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Matched != 1 || res.Modified != 1 {
		t.Fatalf("expected 1/1, got %+v", res)
	}
	res, err = store.Entities().UpdateOne(ctx, "e1", domain.EntityPatch{Description: &desc})
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if res.Matched != 1 || res.Modified != 0 {
		t.Fatalf("expected 1/0 for unchanged document, got %+v", res)
	}
	res, err = store.Entities().UpdateOne(ctx, "missing", domain.EntityPatch{Description: &desc})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if res.Matched != 0 {
		t.Fatalf("expected 0 matched for missing id, got %+v", res)
	}
	got, _, err := store.Entities().FindOne(ctx, "e1")
	if err != nil || got.Description != "b" || got.Name != "Stock" {
		t.Fatalf("unexpected stored entity %+v (%v)", got, err)
	}
}

func nestedDocuments(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := domain.Entity{
		ID:          "e1",
		Name:        "Plate",
		Created:     created,
		Collections: []string{"c1"},
		Associations: domain.Associations{
			Origins: []domain.Reference{{ID: "e0", Name: "Stock"}},
		},
		Attributes: []domain.Attribute{{
			ID:   "a1",
			Name: "Dose",
			Values: []domain.Value{
				{Identifier: "v1", Name: "mg", Data: domain.NumberData(2.5)},
				{Identifier: "v2", Name: "site", Data: domain.SelectData{Selected: "left", Options: []string{"left", "right"}}},
			},
		}},
	}
	if err := store.Entities().InsertOne(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	products := []domain.Reference{{ID: "e2", Name: "Aliquot"}}
	if _, err := store.Entities().UpdateOne(ctx, "e1", domain.EntityPatch{Products: &products}); err != nil {
		t.Fatalf("update products: %v", err)
	}
	got, ok, err := store.Entities().FindOne(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("find: %v %v", ok, err)
	}
	if len(got.Associations.Origins) != 1 || got.Associations.Origins[0].Name != "Stock" {
		t.Fatalf("origins lost: %+v", got.Associations)
	}
	if len(got.Associations.Products) != 1 || got.Associations.Products[0].ID != "e2" {
		t.Fatalf("products not stored: %+v", got.Associations)
	}
	if len(got.Attributes) != 1 || len(got.Attributes[0].Values) != 2 {
		t.Fatalf("attributes lost: %+v", got.Attributes)
	}
	if got.Attributes[0].Values[1].Type() != domain.ValueSelect {
		t.Fatalf("value type lost: %+v", got.Attributes[0].Values[1])
	}
	if !got.Created.Equal(created) {
		t.Fatalf("created drifted: %v", got.Created)
	}
}

func deleteOne(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	if err := store.Entities().InsertOne(ctx, domain.Entity{ID: "e1", Name: "Stock"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	deleted, err := store.Entities().DeleteOne(ctx, "e1")
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v %v", deleted, err)
	}
	deleted, err = store.Entities().DeleteOne(ctx, "e1")
	if err != nil || deleted {
		t.Fatalf("expected second delete to report absence, got %v %v", deleted, err)
	}
}

func findFilters(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	for _, e := range []domain.Entity{
		{ID: "e1", Name: "one", Owner: "ana"},
		{ID: "e2", Name: "two", Owner: "bo"},
		{ID: "e3", Name: "three", Owner: "ana"},
	} {
		if err := store.Entities().InsertOne(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}
	all, err := store.Entities().Find(ctx, domain.Filter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 entities, got %d (%v)", len(all), err)
	}
	owned, err := store.Entities().Find(ctx, domain.Filter{Owner: "ana"})
	if err != nil || len(owned) != 2 {
		t.Fatalf("expected 2 owned entities, got %d (%v)", len(owned), err)
	}
	byID, err := store.Entities().Find(ctx, domain.Filter{IDs: []string{"e2", "e3"}})
	if err != nil || len(byID) != 2 {
		t.Fatalf("expected 2 entities by id, got %d (%v)", len(byID), err)
	}
	limited, err := store.Entities().Find(ctx, domain.Filter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d (%v)", len(limited), err)
	}
}

func collectionsAndJournal(t *testing.T, store domain.DocumentStore) {
	ctx := context.Background()
	if err := store.Collections().InsertOne(ctx, domain.Collection{ID: "c1", Name: "Freezer", Type: domain.CollectionTypeCollection}); err != nil {
		t.Fatalf("insert collection: %v", err)
	}
	members := []string{"e1"}
	res, err := store.Collections().UpdateOne(ctx, "c1", domain.CollectionPatch{Entities: &members})
	if err != nil || res.Modified != 1 {
		t.Fatalf("update collection: %+v %v", res, err)
	}
	if err := store.Attributes().InsertOne(ctx, domain.Attribute{ID: "a1", Name: "Dose"}); err != nil {
		t.Fatalf("insert attribute: %v", err)
	}
	if err := store.Activity().InsertOne(ctx, domain.Activity{ID: "act1", Type: domain.ActionCreate, Actor: "ana"}); err != nil {
		t.Fatalf("insert activity: %v", err)
	}
	pw := domain.PendingWrite{ID: "pw1", Op: domain.LinkAdd, Relation: domain.RelationEntities, TargetID: "c1", Ref: domain.Reference{ID: "e1"}}
	if err := store.PendingWrites().InsertOne(ctx, pw); err != nil {
		t.Fatalf("insert pending write: %v", err)
	}
	pending, err := store.PendingWrites().Find(ctx, domain.Filter{})
	if err != nil || len(pending) != 1 || pending[0].Relation != domain.RelationEntities {
		t.Fatalf("unexpected journal %+v (%v)", pending, err)
	}
	if ok, err := store.PendingWrites().DeleteOne(ctx, "pw1"); err != nil || !ok {
		t.Fatalf("delete pending write: %v %v", ok, err)
	}
}
