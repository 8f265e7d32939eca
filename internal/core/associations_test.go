package core

import (
	"context"
	"errors"
	"labcore/pkg/domain"
	"slices"
	"testing"
)

func TestAddRemoveAssociationKeepsBothSides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})
	c := mustEntity(t, svc, domain.NewEntity{Name: "C"})

	steps := []struct {
		add   bool
		rel   domain.Relation
		from  string
		other string
	}{
		{true, domain.RelationOrigins, b.ID, a.ID},
		{true, domain.RelationProducts, b.ID, c.ID},
		{true, domain.RelationOrigins, c.ID, a.ID},
		{false, domain.RelationOrigins, b.ID, a.ID},
		{true, domain.RelationProducts, a.ID, b.ID},
		{false, domain.RelationProducts, b.ID, c.ID},
	}
	for i, step := range steps {
		var err error
		if step.add {
			err = svc.AddAssociation(ctx, step.rel, step.from, domain.Reference{ID: step.other})
		} else {
			err = svc.RemoveAssociation(ctx, step.rel, step.from, domain.Reference{ID: step.other})
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertSymmetric(t, svc)
	}

	gotB := reload(t, svc, b.ID)
	if !sameIDs(ids(gotB.Associations.Origins), []string{a.ID}) || len(gotB.Associations.Products) != 0 {
		t.Fatalf("unexpected B associations %+v", gotB.Associations)
	}
	if gotB.Associations.Origins[0].Name != "A" {
		t.Fatalf("expected reference name filled from target, got %q", gotB.Associations.Origins[0].Name)
	}
	if n := pendingCount(t, svc); n != 0 {
		t.Fatalf("expected settled journal, got %d", n)
	}
}

func TestAddAssociationGuards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})

	if err := svc.AddAssociation(ctx, domain.RelationOrigins, b.ID, a.Reference()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.AddAssociation(ctx, domain.RelationOrigins, b.ID, a.Reference()); !errors.Is(err, domain.ErrAlreadyAssociated) {
		t.Fatalf("expected ErrAlreadyAssociated, got %v", err)
	}
	if got := reload(t, svc, a.ID).Associations.Products; len(got) != 1 {
		t.Fatalf("repeated add must not duplicate the reciprocal, got %v", got)
	}
	if err := svc.AddAssociation(ctx, domain.RelationOrigins, b.ID, b.Reference()); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for self reference, got %v", err)
	}
	if err := svc.AddAssociation(ctx, domain.RelationProducts, b.ID, domain.Reference{ID: "e-404"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing target, got %v", err)
	}
	if err := svc.AddAssociation(ctx, domain.RelationOrigins, "e-404", a.Reference()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing entity, got %v", err)
	}
	if err := svc.AddAssociation(ctx, domain.RelationCollections, b.ID, a.Reference()); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for non association relation, got %v", err)
	}
	if err := svc.RemoveAssociation(ctx, domain.RelationProducts, b.ID, a.Reference()); !errors.Is(err, domain.ErrNotAssociated) {
		t.Fatalf("expected ErrNotAssociated, got %v", err)
	}
}

func TestRemoveAssociationClearsDanglingReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dangling := domain.Entity{
		ID:           "e-dangling",
		Name:         "Orphan",
		Associations: domain.Associations{Origins: []domain.Reference{{ID: "e-gone"}}},
	}
	if err := svc.Store().Entities().InsertOne(ctx, dangling); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.RemoveAssociation(ctx, domain.RelationOrigins, dangling.ID, domain.Reference{ID: "e-gone"}); err != nil {
		t.Fatalf("remove dangling: %v", err)
	}
	if got := reload(t, svc, dangling.ID).Associations.Origins; len(got) != 0 {
		t.Fatalf("expected dangling origin removed, got %v", got)
	}
}

func TestAddAssociationSourceFailureLeavesJournal(t *testing.T) {
	svc, store := newFaultService(t)
	ctx := context.Background()
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})

	store.entities.breakUpdate(b.ID, true)
	if err := svc.AddAssociation(ctx, domain.RelationOrigins, b.ID, a.Reference()); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	store.entities.breakUpdate(b.ID, false)
	if n := pendingCount(t, svc); n != 1 {
		t.Fatalf("expected one journal record, got %d", n)
	}
	if got := ids(reload(t, svc, a.ID).Associations.Products); !sameIDs(got, []string{b.ID}) {
		t.Fatalf("expected reciprocal written before failure, got %v", got)
	}
}

func TestAddAssociationsUnion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})
	c := mustEntity(t, svc, domain.NewEntity{Name: "C", Associations: domain.Associations{Origins: []domain.Reference{{ID: a.ID}}}})

	added, err := svc.AddAssociations(ctx, domain.RelationOrigins, c.ID, []domain.Reference{
		{ID: a.ID}, {ID: b.ID}, {ID: b.ID}, {ID: c.ID},
	})
	if err != nil {
		t.Fatalf("add associations: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new origin, got %d", added)
	}
	if got := ids(reload(t, svc, c.ID).Associations.Origins); !sameIDs(got, []string{a.ID, b.ID}) {
		t.Fatalf("unexpected origins %v", got)
	}
	assertSymmetric(t, svc)

	added, err = svc.AddAssociations(ctx, domain.RelationOrigins, c.ID, []domain.Reference{{ID: a.ID}})
	if err != nil || added != 0 {
		t.Fatalf("expected no-op union, got added=%d err=%v", added, err)
	}
	if _, err := svc.AddAssociations(ctx, domain.RelationOrigins, c.ID, []domain.Reference{{ID: "e-404"}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEntityCollectionMembership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	e := mustEntity(t, svc, domain.NewEntity{Name: "Vial"})
	col := mustCollection(t, svc, domain.NewCollection{Name: "Freezer"})

	if err := svc.AddEntityCollection(ctx, e.ID, col.ID); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	if !slices.Contains(reloadCollection(t, svc, col.ID).Entities, e.ID) {
		t.Fatalf("expected collection to list %s", e.ID)
	}
	if err := svc.AddEntityCollection(ctx, e.ID, col.ID); !errors.Is(err, domain.ErrAlreadyAssociated) {
		t.Fatalf("expected ErrAlreadyAssociated, got %v", err)
	}
	if err := svc.AddEntityCollection(ctx, e.ID, "c-404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertSymmetric(t, svc)

	if err := svc.RemoveEntityCollection(ctx, e.ID, col.ID); err != nil {
		t.Fatalf("remove membership: %v", err)
	}
	if got := reload(t, svc, e.ID).Collections; len(got) != 0 {
		t.Fatalf("expected no collections, got %v", got)
	}
	if err := svc.RemoveEntityCollection(ctx, e.ID, col.ID); !errors.Is(err, domain.ErrNotAssociated) {
		t.Fatalf("expected ErrNotAssociated, got %v", err)
	}
	assertSymmetric(t, svc)
}

func TestAssociationActivity(t *testing.T) {
	activity := &captureActivity{}
	svc := newTestService(t, WithActivityRecorder(activity))
	ctx := ContextWithActor(context.Background(), "bob")
	a := mustEntity(t, svc, domain.NewEntity{Name: "A"})
	b := mustEntity(t, svc, domain.NewEntity{Name: "B"})
	if err := svc.AddAssociation(ctx, domain.RelationProducts, a.ID, b.Reference()); err != nil {
		t.Fatalf("add: %v", err)
	}
	details := activity.details()
	if !slices.Contains(details, "Added Product "+b.ID) {
		t.Fatalf("expected product activity, got %v", details)
	}
	last := activity.entries[len(activity.entries)-1]
	if last.Actor != "bob" || last.Target.ID != a.ID || last.Type != domain.ActionUpdate {
		t.Fatalf("unexpected activity %+v", last)
	}
}
