package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
)

func checkAssociationRelation(rel domain.Relation) error {
	if rel != domain.RelationOrigins && rel != domain.RelationProducts {
		return fmt.Errorf("%w: %q is not an association relation", domain.ErrInvalid, rel)
	}
	return nil
}

// operation names follow add_entity_origin, remove_entity_product, ...
func associationOp(verb string, rel domain.Relation) string {
	if rel == domain.RelationProducts {
		return verb + "_entity_product"
	}
	return verb + "_entity_origin"
}

// AddAssociation adds other to the rel list (origins or products) of entity
// entityID and adds entityID to the inverse list of other.
func (s *Service) AddAssociation(ctx context.Context, rel domain.Relation, entityID string, other domain.Reference) error {
	return s.observe(ctx, associationOp("add", rel), func(ctx context.Context) error {
		if err := checkAssociationRelation(rel); err != nil {
			return err
		}
		if other.ID == entityID {
			return fmt.Errorf("%w: entity %s cannot reference itself", domain.ErrInvalid, entityID)
		}
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if containsRef(e.Associations.References(rel), other.ID) {
			return fmt.Errorf("%w: %s already in %s of %s", domain.ErrAlreadyAssociated, other.ID, rel, entityID)
		}
		target, err := s.loadEntity(ctx, other.ID)
		if err != nil {
			return err
		}
		if other.Name == "" {
			other.Name = target.Name
		}
		return s.linkPair(ctx, rel, e, other, true)
	})
}

// RemoveAssociation removes other from the rel list of entity entityID and
// entityID from the inverse list of other. A missing other entity is
// tolerated so that dangling references can be cleared.
func (s *Service) RemoveAssociation(ctx context.Context, rel domain.Relation, entityID string, other domain.Reference) error {
	return s.observe(ctx, associationOp("remove", rel), func(ctx context.Context) error {
		if err := checkAssociationRelation(rel); err != nil {
			return err
		}
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if !containsRef(e.Associations.References(rel), other.ID) {
			return fmt.Errorf("%w: %s not in %s of %s", domain.ErrNotAssociated, other.ID, rel, entityID)
		}
		return s.linkPair(ctx, rel, e, other, false)
	})
}

// linkPair writes the reciprocal side first, then the rel list of e (origins,
// products or collections). A source write that changes nothing means another
// writer raced this one.
func (s *Service) linkPair(ctx context.Context, rel domain.Relation, e domain.Entity, other domain.Reference, present bool) error {
	ctx = context.WithoutCancel(ctx)
	plan := s.newLinkPlan()
	op := domain.LinkRemove
	if present {
		op = domain.LinkAdd
	}
	if err := plan.reciprocal(ctx, op, rel.Inverse(), other.ID, e.Reference()); err != nil {
		return err
	}
	changed, err := s.setLink(ctx, rel, e.ID, other, present)
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrWriteConflict
	}
	plan.settle(ctx)
	details := fmt.Sprintf("Added %s %s", relationNoun(rel), other.ID)
	if !present {
		details = fmt.Sprintf("Removed %s %s", relationNoun(rel), other.ID)
	}
	s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, details)
	return nil
}

func relationNoun(rel domain.Relation) string {
	switch rel {
	case domain.RelationOrigins:
		return "Origin"
	case domain.RelationProducts:
		return "Product"
	case domain.RelationCollections, domain.RelationEntities:
		return "Collection"
	}
	return string(rel)
}

// AddAssociations adds every reference in others that is not yet present in
// the rel list of entityID. It returns the number of references added.
func (s *Service) AddAssociations(ctx context.Context, rel domain.Relation, entityID string, others []domain.Reference) (int, error) {
	var added int
	op := associationOp("add", rel) + "s"
	err := s.observe(ctx, op, func(ctx context.Context) error {
		if err := checkAssociationRelation(rel); err != nil {
			return err
		}
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		current := e.Associations.References(rel)
		var fresh []domain.Reference
		for _, ref := range uniqueRefs(others) {
			if ref.ID == entityID || containsRef(current, ref.ID) {
				continue
			}
			target, err := s.loadEntity(ctx, ref.ID)
			if err != nil {
				return err
			}
			if ref.Name == "" {
				ref.Name = target.Name
			}
			fresh = append(fresh, ref)
		}
		if len(fresh) == 0 {
			return nil
		}
		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		for _, ref := range fresh {
			if err := plan.reciprocal(ctx, domain.LinkAdd, rel.Inverse(), ref.ID, e.Reference()); err != nil {
				return err
			}
		}
		var patch domain.EntityPatch
		patch.SetReferences(rel, append(slices.Clone(current), fresh...))
		res, err := s.patchEntity(ctx, entityID, patch)
		if err != nil {
			return err
		}
		if res.Modified == 0 {
			return domain.ErrWriteConflict
		}
		plan.settle(ctx)
		added = len(fresh)
		s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, fmt.Sprintf("Added %d %ss", added, relationNoun(rel)))
		return nil
	})
	return added, err
}

// AddEntityCollection makes entityID a member of collectionID on both sides.
func (s *Service) AddEntityCollection(ctx context.Context, entityID, collectionID string) error {
	return s.observe(ctx, "add_entity_collection", func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if slices.Contains(e.Collections, collectionID) {
			return fmt.Errorf("%w: %s already in collection %s", domain.ErrAlreadyAssociated, entityID, collectionID)
		}
		c, err := s.loadCollection(ctx, collectionID)
		if err != nil {
			return err
		}
		return s.linkPair(ctx, domain.RelationCollections, e, domain.Reference{ID: c.ID, Name: c.Name}, true)
	})
}

// RemoveEntityCollection ends the membership of entityID in collectionID. A
// missing collection is tolerated.
func (s *Service) RemoveEntityCollection(ctx context.Context, entityID, collectionID string) error {
	return s.observe(ctx, "remove_entity_collection", func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if !slices.Contains(e.Collections, collectionID) {
			return fmt.Errorf("%w: %s not in collection %s", domain.ErrNotAssociated, entityID, collectionID)
		}
		return s.linkPair(ctx, domain.RelationCollections, e, domain.Reference{ID: collectionID}, false)
	})
}
