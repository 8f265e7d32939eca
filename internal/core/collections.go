package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
)

// CreateCollection stores a new collection and adds it to the collections
// list of each initial member entity. Child collections must exist. Members
// that cannot be linked are dropped and reported with a *PartialLinkError.
func (s *Service) CreateCollection(ctx context.Context, in domain.NewCollection) (domain.Collection, error) {
	var created domain.Collection
	err := s.observe(ctx, "create_collection", func(ctx context.Context) error {
		if err := s.validateStruct(in); err != nil {
			return err
		}
		c := domain.Collection{
			ID:          s.ids.NewID(domain.KindCollection),
			Name:        in.Name,
			Type:        in.Type,
			Description: in.Description,
			Owner:       in.Owner,
			Created:     in.Created,
			Entities:    uniqueIDs(in.Entities),
			Collections: uniqueIDs(in.Collections),
			History:     []domain.CollectionHistory{},
		}
		if c.Type == "" {
			c.Type = domain.CollectionTypeCollection
		}
		if c.Owner == "" {
			c.Owner = ActorFromContext(ctx)
		}
		if c.Created.IsZero() {
			c.Created = s.now()
		}
		for _, child := range c.Collections {
			if _, err := s.loadCollection(ctx, child); err != nil {
				return err
			}
		}
		if err := s.store.Collections().InsertOne(ctx, c); err != nil {
			return fmt.Errorf("insert collection: %w", err)
		}
		s.record(ctx, domain.ActionCreate, domain.KindCollection, c.ID, c.Name, "Created Collection")

		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		self := domain.Reference{ID: c.ID, Name: c.Name}
		var failures []LinkFailure
		for _, id := range c.Entities {
			if err := plan.reciprocal(ctx, domain.LinkAdd, domain.RelationCollections, id, self); err != nil {
				failures = append(failures, LinkFailure{Relation: domain.RelationEntities, TargetID: id, Err: err})
			}
		}
		if len(failures) > 0 {
			members := c.Entities
			for _, f := range failures {
				members = withoutID(members, f.TargetID)
			}
			if _, err := s.patchCollection(ctx, c.ID, domain.CollectionPatch{Entities: &members}); err != nil {
				return fmt.Errorf("drop unlinked members from %s: %w", c.ID, err)
			}
			c.Entities = members
		}
		plan.settle(ctx)
		created = c
		if len(failures) > 0 {
			return &PartialLinkError{EntityID: c.ID, Failures: failures}
		}
		return nil
	})
	return created, err
}

// UpdateCollection moves the stored collection towards desired. Name, type,
// description, member entities and child collections are taken from desired.
// Adding a child that would make the collection its own descendant fails with
// ErrCycle.
func (s *Service) UpdateCollection(ctx context.Context, desired domain.Collection) (domain.Collection, UpdateStatus, error) {
	var (
		updated domain.Collection
		status  UpdateStatus
	)
	err := s.observe(ctx, "update_collection", func(ctx context.Context) error {
		if desired.Type != "" && desired.Type != domain.CollectionTypeCollection && desired.Type != domain.CollectionTypeProject {
			return fmt.Errorf("%w: collection type %q", domain.ErrInvalid, desired.Type)
		}
		current, err := s.loadCollection(ctx, desired.ID)
		if err != nil {
			return err
		}
		if desired.Name == "" {
			desired.Name = current.Name
		}
		if desired.Type == "" {
			desired.Type = current.Type
		}
		entities := DiffIDs(current.Entities, desired.Entities)
		children := DiffIDs(current.Collections, desired.Collections)
		unchanged := entities.Empty() && children.Empty() &&
			desired.Name == current.Name && desired.Type == current.Type && desired.Description == current.Description
		if unchanged {
			updated, status = current, UpdateStatusNoChanges
			return nil
		}
		for _, id := range entities.Add {
			if _, err := s.loadEntity(ctx, id); err != nil {
				return err
			}
		}
		for _, child := range children.Add {
			if err := s.checkChild(ctx, current.ID, child); err != nil {
				return err
			}
		}

		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		self := domain.Reference{ID: current.ID, Name: desired.Name}
		for _, id := range entities.Add {
			if err := plan.reciprocal(ctx, domain.LinkAdd, domain.RelationCollections, id, self); err != nil {
				return err
			}
		}
		for _, id := range entities.Remove {
			if err := plan.reciprocal(ctx, domain.LinkRemove, domain.RelationCollections, id, self); err != nil {
				return err
			}
		}
		history := append(slices.Clone(current.History), domain.CollectionHistory{
			Timestamp:   s.now(),
			Owner:       current.Owner,
			Description: current.Description,
			Entities:    slices.Clone(current.Entities),
			Collections: slices.Clone(current.Collections),
		})
		patch := domain.CollectionPatch{
			Name:        &desired.Name,
			Type:        &desired.Type,
			Description: &desired.Description,
			History:     &history,
		}
		if !entities.Empty() {
			next := entities.Result()
			patch.Entities = &next
		}
		if !children.Empty() {
			next := children.Result()
			patch.Collections = &next
		}
		res, err := s.patchCollection(ctx, current.ID, patch)
		if err != nil {
			return err
		}
		plan.settle(ctx)
		updated, status = patch.Apply(current), UpdateStatusUpdated
		if res.Modified == 0 {
			updated, status = current, UpdateStatusNoChanges
			return nil
		}
		s.record(ctx, domain.ActionUpdate, domain.KindCollection, updated.ID, updated.Name, "Updated Collection")
		return nil
	})
	return updated, status, err
}

// DeleteCollection removes the collection from every member entity and from
// every parent collection, then deletes it. Child collections are kept.
func (s *Service) DeleteCollection(ctx context.Context, id string) (domain.Collection, error) {
	var deleted domain.Collection
	err := s.observe(ctx, "delete_collection", func(ctx context.Context) error {
		c, err := s.loadCollection(ctx, id)
		if err != nil {
			return err
		}
		ctx = context.WithoutCancel(ctx)
		plan := s.newLinkPlan()
		self := domain.Reference{ID: c.ID, Name: c.Name}
		for _, eid := range c.Entities {
			if err := plan.reciprocal(ctx, domain.LinkRemove, domain.RelationCollections, eid, self); err != nil {
				return err
			}
		}
		parents, err := s.parentsOf(ctx, id)
		if err != nil {
			return err
		}
		for _, parent := range parents {
			next := withoutID(parent.Collections, id)
			if _, err := s.patchCollection(ctx, parent.ID, domain.CollectionPatch{Collections: &next}); err != nil {
				return fmt.Errorf("detach %s from parent %s: %w", id, parent.ID, err)
			}
		}
		ok, err := s.store.Collections().DeleteOne(ctx, id)
		if err != nil {
			return fmt.Errorf("delete collection %s: %w", id, err)
		}
		if !ok {
			return domain.NotFound(domain.KindCollection, id)
		}
		plan.settle(ctx)
		s.record(ctx, domain.ActionDelete, domain.KindCollection, c.ID, c.Name, "Deleted Collection")
		deleted = c
		return nil
	})
	return deleted, err
}

// AddCollectionChild nests childID under parentID.
func (s *Service) AddCollectionChild(ctx context.Context, parentID, childID string) error {
	return s.observe(ctx, "add_collection_child", func(ctx context.Context) error {
		parent, err := s.loadCollection(ctx, parentID)
		if err != nil {
			return err
		}
		if slices.Contains(parent.Collections, childID) {
			return fmt.Errorf("%w: %s already nested in %s", domain.ErrAlreadyAssociated, childID, parentID)
		}
		if err := s.checkChild(ctx, parentID, childID); err != nil {
			return err
		}
		next := withID(parent.Collections, childID)
		return s.writeChildren(ctx, parent, next, "Added Collection "+childID)
	})
}

// RemoveCollectionChild removes childID from the children of parentID.
func (s *Service) RemoveCollectionChild(ctx context.Context, parentID, childID string) error {
	return s.observe(ctx, "remove_collection_child", func(ctx context.Context) error {
		parent, err := s.loadCollection(ctx, parentID)
		if err != nil {
			return err
		}
		if !slices.Contains(parent.Collections, childID) {
			return fmt.Errorf("%w: %s not nested in %s", domain.ErrNotAssociated, childID, parentID)
		}
		next := withoutID(parent.Collections, childID)
		return s.writeChildren(ctx, parent, next, "Removed Collection "+childID)
	})
}

func (s *Service) writeChildren(ctx context.Context, parent domain.Collection, children []string, details string) error {
	res, err := s.patchCollection(ctx, parent.ID, domain.CollectionPatch{Collections: &children})
	if err != nil {
		return err
	}
	if res.Modified == 0 {
		return domain.ErrWriteConflict
	}
	s.record(ctx, domain.ActionUpdate, domain.KindCollection, parent.ID, parent.Name, details)
	return nil
}

// checkChild verifies that childID exists and that nesting it under parentID
// keeps the hierarchy acyclic.
func (s *Service) checkChild(ctx context.Context, parentID, childID string) error {
	if childID == parentID {
		return fmt.Errorf("%w: %s cannot contain itself", domain.ErrCycle, parentID)
	}
	if _, err := s.loadCollection(ctx, childID); err != nil {
		return err
	}
	reachable, err := s.descends(ctx, childID, parentID)
	if err != nil {
		return err
	}
	if reachable {
		return fmt.Errorf("%w: %s is a descendant of %s", domain.ErrCycle, parentID, childID)
	}
	return nil
}

// descends reports whether target is reachable from root through child
// collection links. Missing collections end their branch.
func (s *Service) descends(ctx context.Context, root, target string) (bool, error) {
	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		c, ok, err := s.store.Collections().FindOne(ctx, id)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		for _, child := range c.Collections {
			if child == target {
				return true, nil
			}
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return false, nil
}

func (s *Service) parentsOf(ctx context.Context, id string) ([]domain.Collection, error) {
	all, err := s.store.Collections().Find(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}
	var parents []domain.Collection
	for _, c := range all {
		if slices.Contains(c.Collections, id) {
			parents = append(parents, c)
		}
	}
	return parents, nil
}

// GetCollection returns the collection with id.
func (s *Service) GetCollection(ctx context.Context, id string) (domain.Collection, error) {
	return s.loadCollection(ctx, id)
}

// ListCollections returns the collections selected by filter.
func (s *Service) ListCollections(ctx context.Context, filter domain.Filter) ([]domain.Collection, error) {
	return s.store.Collections().Find(ctx, filter)
}
