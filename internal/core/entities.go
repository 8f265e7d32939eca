package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
)

// UpdateStatus distinguishes an update that changed the stored document from
// one that found nothing to change.
type UpdateStatus string

// Update outcomes.
const (
	UpdateStatusUpdated   UpdateStatus = "updated"
	UpdateStatusNoChanges UpdateStatus = "no_changes"
)

// CreateEntity stores a new entity and links it to its initial origins,
// products and collections. When some links cannot be made the entity is still
// returned together with a *PartialLinkError; the failed references are absent
// from the stored document.
func (s *Service) CreateEntity(ctx context.Context, in domain.NewEntity) (domain.Entity, error) {
	var created domain.Entity
	err := s.observe(ctx, "create_entity", func(ctx context.Context) error {
		if err := s.validateStruct(in); err != nil {
			return err
		}
		now := s.now()
		e := domain.Entity{
			ID:          s.ids.NewID(domain.KindEntity),
			Name:        in.Name,
			Owner:       in.Owner,
			Created:     in.Created,
			Description: in.Description,
			Collections: uniqueIDs(in.Collections),
			Associations: domain.Associations{
				Origins:  uniqueRefs(in.Associations.Origins),
				Products: uniqueRefs(in.Associations.Products),
			},
			Attributes:  s.assignAttributeIDs(nil, in.Attributes, now),
			Attachments: uniqueRefs(in.Attachments),
			History:     []domain.EntityHistory{},
		}
		if e.Owner == "" {
			e.Owner = ActorFromContext(ctx)
		}
		if e.Created.IsZero() {
			e.Created = now
		}
		if err := s.store.Entities().InsertOne(ctx, e); err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		s.record(ctx, domain.ActionCreate, domain.KindEntity, e.ID, e.Name, "Created Entity")

		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		self := e.Reference()
		var failures []LinkFailure
		link := func(rel domain.Relation, targetID string) {
			// rel is the source list; the reciprocal lands on its inverse.
			if err := plan.reciprocal(ctx, domain.LinkAdd, rel.Inverse(), targetID, self); err != nil {
				failures = append(failures, LinkFailure{Relation: rel, TargetID: targetID, Err: err})
			}
		}
		for _, ref := range e.Associations.Origins {
			link(domain.RelationOrigins, ref.ID)
		}
		for _, ref := range e.Associations.Products {
			link(domain.RelationProducts, ref.ID)
		}
		for _, id := range e.Collections {
			link(domain.RelationCollections, id)
		}
		if len(failures) > 0 {
			patch := unlinkedPatch(e, failures)
			if _, err := s.patchEntity(ctx, e.ID, patch); err != nil {
				return fmt.Errorf("drop unlinked references from %s: %w", e.ID, err)
			}
			e = patch.Apply(e)
		}
		plan.settle(ctx)
		created = e
		if len(failures) > 0 {
			return &PartialLinkError{EntityID: e.ID, Failures: failures}
		}
		return nil
	})
	return created, err
}

// unlinkedPatch removes every failed reference from the lists of e.
func unlinkedPatch(e domain.Entity, failures []LinkFailure) domain.EntityPatch {
	origins, products, collections := e.Associations.Origins, e.Associations.Products, e.Collections
	for _, f := range failures {
		switch f.Relation {
		case domain.RelationOrigins:
			origins = withoutRef(origins, f.TargetID)
		case domain.RelationProducts:
			products = withoutRef(products, f.TargetID)
		case domain.RelationCollections:
			collections = withoutID(collections, f.TargetID)
		}
	}
	var patch domain.EntityPatch
	patch.SetReferences(domain.RelationOrigins, origins)
	patch.SetReferences(domain.RelationProducts, products)
	patch.Collections = &collections
	return patch
}

// UpdateEntity moves the stored entity towards desired. Only the description,
// collections and associations are taken from desired; references are
// compared by id. The pre-update state is appended to the history before the
// new values are written.
func (s *Service) UpdateEntity(ctx context.Context, desired domain.Entity) (domain.Entity, UpdateStatus, error) {
	var (
		updated domain.Entity
		status  UpdateStatus
	)
	err := s.observe(ctx, "update_entity", func(ctx context.Context) error {
		var err error
		updated, status, err = s.updateEntity(ctx, desired)
		return err
	})
	return updated, status, err
}

// SetEntityDescription replaces the description of an entity through the
// regular update path so that the change is recorded in its history.
func (s *Service) SetEntityDescription(ctx context.Context, id, description string) (domain.Entity, UpdateStatus, error) {
	var (
		updated domain.Entity
		status  UpdateStatus
	)
	err := s.observe(ctx, "set_entity_description", func(ctx context.Context) error {
		current, err := s.loadEntity(ctx, id)
		if err != nil {
			return err
		}
		current.Description = description
		updated, status, err = s.updateEntity(ctx, current)
		return err
	})
	return updated, status, err
}

func (s *Service) updateEntity(ctx context.Context, desired domain.Entity) (domain.Entity, UpdateStatus, error) {
	current, err := s.loadEntity(ctx, desired.ID)
	if err != nil {
		return domain.Entity{}, "", err
	}
	if containsRef(desired.Associations.Origins, desired.ID) || containsRef(desired.Associations.Products, desired.ID) {
		return domain.Entity{}, "", fmt.Errorf("%w: entity %s cannot reference itself", domain.ErrInvalid, desired.ID)
	}
	collections := DiffIDs(current.Collections, desired.Collections)
	origins := DiffReferences(current.Associations.Origins, desired.Associations.Origins)
	products := DiffReferences(current.Associations.Products, desired.Associations.Products)
	descriptionChanged := desired.Description != current.Description
	if collections.Empty() && origins.Empty() && products.Empty() && !descriptionChanged {
		return current, UpdateStatusNoChanges, nil
	}
	for _, id := range collections.Add {
		if _, err := s.loadCollection(ctx, id); err != nil {
			return domain.Entity{}, "", err
		}
	}
	for _, ref := range slices.Concat(origins.Add, products.Add) {
		if _, err := s.loadEntity(ctx, ref.ID); err != nil {
			return domain.Entity{}, "", err
		}
	}

	ctx = context.WithoutCancel(ctx)
	plan := s.newLinkPlan()
	self := current.Reference()
	steps := []struct {
		op      domain.LinkOp
		rel     domain.Relation
		targets []string
	}{
		{domain.LinkAdd, domain.RelationEntities, collections.Add},
		{domain.LinkRemove, domain.RelationEntities, collections.Remove},
		{domain.LinkAdd, domain.RelationProducts, refIDs(origins.Add)},
		{domain.LinkRemove, domain.RelationProducts, refIDs(origins.Remove)},
		{domain.LinkAdd, domain.RelationOrigins, refIDs(products.Add)},
		{domain.LinkRemove, domain.RelationOrigins, refIDs(products.Remove)},
	}
	for _, step := range steps {
		for _, target := range step.targets {
			if err := plan.reciprocal(ctx, step.op, step.rel, target, self); err != nil {
				return domain.Entity{}, "", err
			}
		}
	}

	history := append(slices.Clone(current.History), current.Snapshot(s.now()))
	patch := domain.EntityPatch{History: &history}
	if descriptionChanged {
		patch.Description = &desired.Description
	}
	if !collections.Empty() {
		next := collections.Result()
		patch.Collections = &next
	}
	if !origins.Empty() {
		patch.SetReferences(domain.RelationOrigins, origins.Result())
	}
	if !products.Empty() {
		patch.SetReferences(domain.RelationProducts, products.Result())
	}
	res, err := s.patchEntity(ctx, current.ID, patch)
	if err != nil {
		return domain.Entity{}, "", err
	}
	plan.settle(ctx)
	if res.Modified == 0 {
		return current, UpdateStatusNoChanges, nil
	}
	updated := patch.Apply(current)
	s.record(ctx, domain.ActionUpdate, domain.KindEntity, updated.ID, updated.Name, "Updated Entity")
	return updated, UpdateStatusUpdated, nil
}

func refIDs(refs []domain.Reference) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

// DeleteEntity removes an entity after unlinking it from its collections,
// origins and products. If any unlink fails the document is kept and the
// error is returned. The returned entity is the state before deletion.
func (s *Service) DeleteEntity(ctx context.Context, id string) (domain.Entity, error) {
	var deleted domain.Entity
	err := s.observe(ctx, "delete_entity", func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, id)
		if err != nil {
			return err
		}
		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		self := e.Reference()
		for _, cid := range e.Collections {
			if err := plan.reciprocal(ctx, domain.LinkRemove, domain.RelationEntities, cid, self); err != nil {
				return err
			}
		}
		for _, ref := range e.Associations.Origins {
			if err := plan.reciprocal(ctx, domain.LinkRemove, domain.RelationProducts, ref.ID, self); err != nil {
				return err
			}
		}
		for _, ref := range e.Associations.Products {
			if err := plan.reciprocal(ctx, domain.LinkRemove, domain.RelationOrigins, ref.ID, self); err != nil {
				return err
			}
		}
		ok, err := s.store.Entities().DeleteOne(ctx, id)
		if err != nil {
			return fmt.Errorf("delete entity %s: %w", id, err)
		}
		if !ok {
			return domain.NotFound(domain.KindEntity, id)
		}
		plan.settle(ctx)
		s.deleteAttachmentBlobs(ctx, e)
		s.record(ctx, domain.ActionDelete, domain.KindEntity, e.ID, e.Name, "Deleted Entity")
		deleted = e
		return nil
	})
	return deleted, err
}

// GetEntity returns the entity with id.
func (s *Service) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return s.loadEntity(ctx, id)
}

// ListEntities returns the entities selected by filter in storage order.
func (s *Service) ListEntities(ctx context.Context, filter domain.Filter) ([]domain.Entity, error) {
	return s.store.Entities().Find(ctx, filter)
}
