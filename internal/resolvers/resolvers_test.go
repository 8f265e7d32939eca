package resolvers

import (
	"context"
	"errors"
	"fmt"
	"labcore/internal/core"
	"labcore/internal/ident"
	"labcore/pkg/domain"
	"strings"
	"testing"
)

func newResolvers(t *testing.T, opts ...Option) (*Resolvers, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService(core.WithIDAllocator(ident.NewSequence()))
	return New(svc, opts...), svc
}

// succeeds returns a check that accepts a resolver's results directly and
// fails t unless the call succeeded.
func succeeds(t *testing.T) func(Response, error) Response {
	return func(res Response, err error) Response {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Success {
			t.Fatalf("expected success, got %q", res.Message)
		}
		return res
	}
}

func expectFailure(t *testing.T, res Response, err error, message string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != message {
		t.Fatalf("expected failed response %q, got %+v", message, res)
	}
}

func TestCreateAndAssociateEntities(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	ctx := context.Background()

	res := must(r.CreateEntity(ctx, domain.NewEntity{Name: "A"}))
	if res.Message != "Created Entity successfully" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	a := res.Data.(string)
	b := must(r.CreateEntity(ctx, domain.NewEntity{Name: "B"})).Data.(string)

	must(r.AddEntityOrigin(ctx, b, domain.Reference{ID: a}))
	res, err := r.AddEntityOrigin(ctx, b, domain.Reference{ID: a})
	expectFailure(t, res, err, "Entity already associated with Origin")

	res, err = r.RemoveEntityProduct(ctx, b, domain.Reference{ID: a})
	expectFailure(t, res, err, "Entity is not associated with Product to be removed")

	res, err = r.AddEntityProduct(ctx, "e-404", domain.Reference{ID: a})
	expectFailure(t, res, err, "Entity not found")

	entity, ok, err := r.Entity(ctx, a)
	if err != nil || !ok {
		t.Fatalf("entity lookup: ok=%v err=%v", ok, err)
	}
	if len(entity.Associations.Products) != 1 || entity.Associations.Products[0].ID != b {
		t.Fatalf("expected product link, got %+v", entity.Associations)
	}
	if _, ok, err := r.Entity(ctx, "e-404"); ok || err != nil {
		t.Fatalf("expected absent entity, got ok=%v err=%v", ok, err)
	}

	res = must(r.AddEntityProducts(ctx, a, []domain.Reference{{ID: b}}))
	if res.Data.(int) != 0 {
		t.Fatalf("expected nothing added, got %v", res.Data)
	}
	list, err := r.Entities(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one entity, got %d err=%v", len(list), err)
	}
}

func TestUpdateEntityMessages(t *testing.T) {
	must := succeeds(t)
	r, svc := newResolvers(t)
	ctx := context.Background()
	id := must(r.CreateEntity(ctx, domain.NewEntity{Name: "Plate", Description: "old"})).Data.(string)
	current, err := svc.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	res := must(r.UpdateEntity(ctx, current))
	if res.Message != "No changes made to Entity" {
		t.Fatalf("expected no-op message, got %q", res.Message)
	}
	current.Description = "new"
	res = must(r.UpdateEntity(ctx, current))
	if res.Message != "Updated Entity" {
		t.Fatalf("expected update message, got %q", res.Message)
	}
	res, err = r.UpdateEntity(ctx, domain.Entity{ID: "e-404"})
	expectFailure(t, res, err, "Entity not found")

	res = must(r.SetEntityDescription(ctx, id, "newer"))
	if res.Message != "Set description successfully" {
		t.Fatalf("expected description message, got %q", res.Message)
	}
	res = must(r.SetEntityDescription(ctx, id, "newer"))
	if res.Message != "No changes made to Entity" {
		t.Fatalf("expected no-op description message, got %q", res.Message)
	}
	stored, err := svc.GetEntity(ctx, id)
	if err != nil || stored.Description != "newer" || len(stored.History) != 2 {
		t.Fatalf("unexpected entity after description updates %+v err=%v", stored, err)
	}
}

func TestCreateEntityPartialLink(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	res := must(r.CreateEntity(context.Background(), domain.NewEntity{
		Name:        "Orphan",
		Collections: []string{"c-404"},
	}))
	if !strings.Contains(res.Message, "1 reference(s) could not be linked") {
		t.Fatalf("expected partial link message, got %q", res.Message)
	}
	if res.Data.(string) == "" {
		t.Fatalf("expected created id")
	}
}

func TestEntityAttributeMessages(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	ctx := context.Background()
	id := must(r.CreateEntity(ctx, domain.NewEntity{Name: "Tube"})).Data.(string)

	attrID := must(r.AddEntityAttribute(ctx, id, domain.Attribute{Name: "Volume"})).Data.(string)
	res, err := r.UpdateEntityAttribute(ctx, id, domain.Attribute{ID: "a-404", Name: "Volume"})
	expectFailure(t, res, err, "Entity does not contain Attribute to update")
	res, err = r.RemoveEntityAttribute(ctx, id, "a-404")
	expectFailure(t, res, err, "Entity does not have Attribute to remove")
	res, err = r.AddEntityAttribute(ctx, id, domain.Attribute{})
	expectFailure(t, res, err, "Unable to add Attribute")
	must(r.RemoveEntityAttribute(ctx, id, attrID))
}

func TestCollectionMessages(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	ctx := context.Background()
	e := must(r.CreateEntity(ctx, domain.NewEntity{Name: "Jar"})).Data.(string)
	parent := must(r.CreateCollection(ctx, domain.NewCollection{Name: "Shelf"})).Data.(string)
	child := must(r.CreateCollection(ctx, domain.NewCollection{Name: "Box"})).Data.(string)

	must(r.AddEntityCollection(ctx, e, parent))
	res, err := r.AddEntityCollection(ctx, e, parent)
	expectFailure(t, res, err, "Entity already associated with Collection")
	res, err = r.AddEntityCollection(ctx, e, "c-404")
	expectFailure(t, res, err, "Collection not found")

	must(r.AddCollectionChild(ctx, parent, child))
	res, err = r.AddCollectionChild(ctx, child, parent)
	expectFailure(t, res, err, "Unable to add Collection")

	res, err = r.DeleteCollection(ctx, "c-404")
	expectFailure(t, res, err, "Collection not found")
	must(r.DeleteCollection(ctx, child))
	must(r.RemoveEntityCollection(ctx, e, parent))
	res, err = r.RemoveEntityCollection(ctx, e, parent)
	expectFailure(t, res, err, "Entity not associated with Collection")
}

func TestAttributeTemplateMessages(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	ctx := context.Background()
	id := must(r.CreateAttribute(ctx, domain.Attribute{Name: "pH"})).Data.(string)
	res := must(r.UpdateAttribute(ctx, domain.Attribute{ID: id, Name: "pH"}))
	if res.Message != "No changes made to Attribute" {
		t.Fatalf("expected no-op message, got %q", res.Message)
	}
	must(r.ArchiveAttribute(ctx, id, true))
	res, err := r.ArchiveAttribute(ctx, "a-404", true)
	expectFailure(t, res, err, "Attribute not found")
}

func TestDeleteEntityAndExport(t *testing.T) {
	must := succeeds(t)
	r, _ := newResolvers(t)
	ctx := context.Background()
	id := must(r.CreateEntity(ctx, domain.NewEntity{Name: "Sample"})).Data.(string)

	res := must(r.ExportEntity(ctx, id, "csv", []string{"id", "name"}))
	if res.Data.(string) != "id,name\n"+id+",Sample\n" {
		t.Fatalf("unexpected export %q", res.Data)
	}
	res, err := r.ExportEntity(ctx, id, "xml", nil)
	expectFailure(t, res, err, "Unable to export Entity")

	must(r.DeleteEntity(ctx, id))
	res, err = r.DeleteEntity(ctx, id)
	expectFailure(t, res, err, "Entity not found")
	res, err = r.ExportEntity(ctx, id, "json", nil)
	expectFailure(t, res, err, "Entity not found")
}

func TestAuthorizerDeniesBeforeCall(t *testing.T) {
	must := succeeds(t)
	var seen []domain.Action
	auth := AuthorizerFunc(func(_ context.Context, actor string, action domain.Action, _ domain.ActivityTarget) error {
		seen = append(seen, action)
		if actor != "admin" && action == domain.ActionDelete {
			return errors.New("read only user")
		}
		return nil
	})
	r, svc := newResolvers(t, WithAuthorizer(auth))
	ctx := core.ContextWithActor(context.Background(), "guest")
	id := must(r.CreateEntity(ctx, domain.NewEntity{Name: "Kept"})).Data.(string)

	res, err := r.DeleteEntity(ctx, id)
	expectFailure(t, res, err, "Not authorized")
	if _, err := svc.GetEntity(ctx, id); err != nil {
		t.Fatalf("denied delete must not run: %v", err)
	}
	must(r.DeleteEntity(core.ContextWithActor(context.Background(), "admin"), id))
	if len(seen) != 3 {
		t.Fatalf("expected 3 authorization checks, got %v", seen)
	}
}

func TestStoreFaultsAreReturned(t *testing.T) {
	fault := errors.New("connection reset")
	got, err := respond(fault, entityMessages("ok", "failed"), nil)
	if !errors.Is(err, fault) || got.Success {
		t.Fatalf("expected store fault to propagate, got %+v %v", got, err)
	}
	got, err = respond(fmt.Errorf("%w: bad", domain.ErrCycle), entityMessages("ok", "failed"), nil)
	if err != nil || got.Message != "failed" {
		t.Fatalf("expected taxonomy failure, got %+v %v", got, err)
	}
}
