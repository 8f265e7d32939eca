package core

import (
	"context"
	"errors"
	"fmt"
	"labcore/pkg/domain"
	"slices"
)

// setLink makes ref present or absent in the rel list of document holderID.
// It reports whether the document changed. A list already in the requested
// state is left alone. An update that matched but modified nothing means a
// concurrent writer raced us and yields ErrWriteConflict.
func (s *Service) setLink(ctx context.Context, rel domain.Relation, holderID string, ref domain.Reference, present bool) (bool, error) {
	switch rel {
	case domain.RelationOrigins, domain.RelationProducts:
		e, err := s.loadEntity(ctx, holderID)
		if err != nil {
			return false, err
		}
		list := e.Associations.References(rel)
		if containsRef(list, ref.ID) == present {
			return false, nil
		}
		var patch domain.EntityPatch
		if present {
			patch.SetReferences(rel, withRef(list, ref))
		} else {
			patch.SetReferences(rel, withoutRef(list, ref.ID))
		}
		return s.applyLinkResult(s.patchEntity(ctx, holderID, patch))
	case domain.RelationCollections:
		e, err := s.loadEntity(ctx, holderID)
		if err != nil {
			return false, err
		}
		if slices.Contains(e.Collections, ref.ID) == present {
			return false, nil
		}
		next := withoutID(e.Collections, ref.ID)
		if present {
			next = withID(e.Collections, ref.ID)
		}
		return s.applyLinkResult(s.patchEntity(ctx, holderID, domain.EntityPatch{Collections: &next}))
	case domain.RelationEntities:
		c, err := s.loadCollection(ctx, holderID)
		if err != nil {
			return false, err
		}
		if slices.Contains(c.Entities, ref.ID) == present {
			return false, nil
		}
		next := withoutID(c.Entities, ref.ID)
		if present {
			next = withID(c.Entities, ref.ID)
		}
		return s.applyLinkResult(s.patchCollection(ctx, holderID, domain.CollectionPatch{Entities: &next}))
	default:
		return false, fmt.Errorf("%w: unknown relation %q", domain.ErrInvalid, rel)
	}
}

func (s *Service) applyLinkResult(res domain.UpdateResult, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	if res.Modified == 0 {
		return false, domain.ErrWriteConflict
	}
	return true, nil
}

// linkPlan journals and applies the reciprocal half of relationship changes
// made by one operation. Journal records are deleted by settle once the
// source document reflects the change; records of an aborted operation stay
// behind for Reconcile.
type linkPlan struct {
	svc     *Service
	journal []string
}

func (s *Service) newLinkPlan() *linkPlan {
	return &linkPlan{svc: s}
}

// reciprocal records and applies op of ref on the rel list of targetID. ref
// names the source document. A target that already reflects the change, or a
// missing target on removal, is not an error.
func (p *linkPlan) reciprocal(ctx context.Context, op domain.LinkOp, rel domain.Relation, targetID string, ref domain.Reference) error {
	s := p.svc
	pw := domain.PendingWrite{
		ID:       s.ids.NewID(domain.KindPendingWrite),
		Created:  s.now(),
		Op:       op,
		Relation: rel,
		TargetID: targetID,
		Ref:      ref,
	}
	if err := s.store.PendingWrites().InsertOne(ctx, pw); err != nil {
		return fmt.Errorf("journal %s %s on %s: %w", op, rel, targetID, err)
	}
	p.journal = append(p.journal, pw.ID)
	_, err := s.setLink(ctx, rel, targetID, ref, op == domain.LinkAdd)
	switch {
	case err == nil, errors.Is(err, domain.ErrWriteConflict):
		return nil
	case op == domain.LinkRemove && errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		s.logger.Warn("reciprocal write failed",
			"entity_id", ref.ID, "relation", rel, "target_id", targetID, "op", op, "error", err)
		return fmt.Errorf("%s %s %s on %s: %w", op, ref.ID, rel, targetID, err)
	}
}

// settle removes the journal records of a completed operation.
func (p *linkPlan) settle(ctx context.Context) {
	for _, id := range p.journal {
		if _, err := p.svc.store.PendingWrites().DeleteOne(ctx, id); err != nil {
			p.svc.logger.Warn("settle journal record failed", "pending_write_id", id, "error", err)
		}
	}
	p.journal = nil
}

// LinkFailure describes one reference that could not be linked on create.
type LinkFailure struct {
	Relation domain.Relation
	TargetID string
	Err      error
}

// PartialLinkError is returned by CreateEntity alongside the stored entity
// when some references could not be linked. Those references are absent from
// the stored entity.
type PartialLinkError struct {
	EntityID string
	Failures []LinkFailure
}

func (e *PartialLinkError) Error() string {
	return fmt.Sprintf("entity %s created with %d unlinked reference(s)", e.EntityID, len(e.Failures))
}

// Unwrap exposes the individual link errors to errors.Is and errors.As.
func (e *PartialLinkError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
