package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
	"time"
)

// assignAttributeIDs returns copies of attrs ready to be appended to existing:
// each gets an id that is not used by existing or by an earlier attribute in
// attrs, and a creation time.
func (s *Service) assignAttributeIDs(existing, attrs []domain.Attribute, now time.Time) []domain.Attribute {
	taken := make(map[string]struct{}, len(existing)+len(attrs))
	for _, a := range existing {
		taken[a.ID] = struct{}{}
	}
	used := func(id string) bool {
		_, ok := taken[id]
		return ok
	}
	out := make([]domain.Attribute, 0, len(attrs))
	for _, a := range attrs {
		a = a.Clone()
		// Supplied ids do not advance the allocator, so fresh ids can collide too.
		for a.ID == "" || used(a.ID) {
			a.ID = s.ids.NewID(domain.KindAttribute)
		}
		if a.Created.IsZero() {
			a.Created = now
		}
		taken[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func attributeIndex(attrs []domain.Attribute, id string) int {
	return slices.IndexFunc(attrs, func(a domain.Attribute) bool { return a.ID == id })
}

// AddEntityAttribute appends attr to the attributes of entityID. Names are
// not checked for uniqueness. The stored attribute is returned.
func (s *Service) AddEntityAttribute(ctx context.Context, entityID string, attr domain.Attribute) (domain.Attribute, error) {
	var added domain.Attribute
	err := s.observe(ctx, "add_entity_attribute", func(ctx context.Context) error {
		if err := s.validateStruct(attr); err != nil {
			return err
		}
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		if attr.Owner == "" {
			attr.Owner = ActorFromContext(ctx)
		}
		added = s.assignAttributeIDs(e.Attributes, []domain.Attribute{attr}, s.now())[0]
		next := append(cloneAttributeList(e.Attributes), added)
		if err := s.writeAttributes(ctx, entityID, next); err != nil {
			return err
		}
		s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, "Added Attribute "+added.ID)
		return nil
	})
	return added, err
}

// RemoveEntityAttribute removes the attribute attributeID from entityID.
func (s *Service) RemoveEntityAttribute(ctx context.Context, entityID, attributeID string) error {
	return s.observe(ctx, "remove_entity_attribute", func(ctx context.Context) error {
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		i := attributeIndex(e.Attributes, attributeID)
		if i < 0 {
			return domain.NotFound(domain.KindAttribute, attributeID)
		}
		next := slices.Delete(cloneAttributeList(e.Attributes), i, i+1)
		if err := s.writeAttributes(ctx, entityID, next); err != nil {
			return err
		}
		s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, "Removed Attribute "+attributeID)
		return nil
	})
}

// UpdateEntityAttribute replaces the attribute of entityID that has the id of
// attr.
func (s *Service) UpdateEntityAttribute(ctx context.Context, entityID string, attr domain.Attribute) (UpdateStatus, error) {
	var status UpdateStatus
	err := s.observe(ctx, "update_entity_attribute", func(ctx context.Context) error {
		if err := s.validateStruct(attr); err != nil {
			return err
		}
		e, err := s.loadEntity(ctx, entityID)
		if err != nil {
			return err
		}
		i := attributeIndex(e.Attributes, attr.ID)
		if i < 0 {
			return domain.NotFound(domain.KindAttribute, attr.ID)
		}
		replacement := attr.Clone()
		if replacement.Created.IsZero() {
			replacement.Created = e.Attributes[i].Created
		}
		if replacement.Owner == "" {
			replacement.Owner = e.Attributes[i].Owner
		}
		if domain.SameDocument(e.Attributes[i], replacement) {
			status = UpdateStatusNoChanges
			return nil
		}
		next := cloneAttributeList(e.Attributes)
		next[i] = replacement
		if err := s.writeAttributes(ctx, entityID, next); err != nil {
			return err
		}
		status = UpdateStatusUpdated
		s.record(ctx, domain.ActionUpdate, domain.KindEntity, e.ID, e.Name, "Updated Attribute "+attr.ID)
		return nil
	})
	return status, err
}

func (s *Service) writeAttributes(ctx context.Context, entityID string, attrs []domain.Attribute) error {
	res, err := s.patchEntity(ctx, entityID, domain.EntityPatch{Attributes: &attrs})
	if err != nil {
		return err
	}
	if res.Modified == 0 {
		return domain.ErrWriteConflict
	}
	return nil
}

func cloneAttributeList(attrs []domain.Attribute) []domain.Attribute {
	out := make([]domain.Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}

// CreateAttribute stores a standalone attribute template.
func (s *Service) CreateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, error) {
	var created domain.Attribute
	err := s.observe(ctx, "create_attribute", func(ctx context.Context) error {
		if err := s.validateStruct(attr); err != nil {
			return err
		}
		created = attr.Clone()
		created.ID = s.ids.NewID(domain.KindAttribute)
		if created.Owner == "" {
			created.Owner = ActorFromContext(ctx)
		}
		if created.Created.IsZero() {
			created.Created = s.now()
		}
		if err := s.store.Attributes().InsertOne(ctx, created); err != nil {
			return fmt.Errorf("insert attribute: %w", err)
		}
		s.record(ctx, domain.ActionCreate, domain.KindAttribute, created.ID, created.Name, "Created Attribute")
		return nil
	})
	return created, err
}

// GetAttribute returns the attribute template with id.
func (s *Service) GetAttribute(ctx context.Context, id string) (domain.Attribute, error) {
	return s.loadAttribute(ctx, id)
}

// ListAttributes returns the attribute templates selected by filter.
func (s *Service) ListAttributes(ctx context.Context, filter domain.Filter) ([]domain.Attribute, error) {
	return s.store.Attributes().Find(ctx, filter)
}

// UpdateAttribute replaces the name, description and values of a template.
func (s *Service) UpdateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, UpdateStatus, error) {
	var (
		updated domain.Attribute
		status  UpdateStatus
	)
	err := s.observe(ctx, "update_attribute", func(ctx context.Context) error {
		if err := s.validateStruct(attr); err != nil {
			return err
		}
		current, err := s.loadAttribute(ctx, attr.ID)
		if err != nil {
			return err
		}
		values := attr.Clone().Values
		patch := domain.AttributePatch{Name: &attr.Name, Description: &attr.Description, Values: &values}
		res, err := s.store.Attributes().UpdateOne(ctx, attr.ID, patch)
		if err != nil {
			return err
		}
		if res.Matched == 0 {
			return domain.NotFound(domain.KindAttribute, attr.ID)
		}
		updated = patch.Apply(current)
		status = UpdateStatusNoChanges
		if res.Modified > 0 {
			status = UpdateStatusUpdated
			s.record(ctx, domain.ActionUpdate, domain.KindAttribute, updated.ID, updated.Name, "Updated Attribute")
		}
		return nil
	})
	return updated, status, err
}

// ArchiveAttribute sets the archived flag of a template.
func (s *Service) ArchiveAttribute(ctx context.Context, id string, archived bool) error {
	return s.observe(ctx, "archive_attribute", func(ctx context.Context) error {
		current, err := s.loadAttribute(ctx, id)
		if err != nil {
			return err
		}
		res, err := s.store.Attributes().UpdateOne(ctx, id, domain.AttributePatch{Archived: &archived})
		if err != nil {
			return err
		}
		if res.Matched == 0 {
			return domain.NotFound(domain.KindAttribute, id)
		}
		details := "Archived Attribute"
		if !archived {
			details = "Restored Attribute"
		}
		if res.Modified > 0 {
			s.record(ctx, domain.ActionUpdate, domain.KindAttribute, id, current.Name, details)
		}
		return nil
	})
}
