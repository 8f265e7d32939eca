package core

import (
	"context"
	"labcore/pkg/domain"
)

// DefaultRules builds an engine with the built-in integrity rules.
func DefaultRules() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(AssociationSymmetryRule())
	engine.Register(CollectionMembershipRule())
	engine.Register(AttributeIdentityRule())
	engine.Register(CollectionCycleRule())
	return engine
}

// snapshotView is a RuleView over documents loaded in one scan. Without
// cross-document transactions the scan may observe an operation halfway.
type snapshotView struct {
	entities    []domain.Entity
	collections []domain.Collection
	entityIdx   map[string]int
	collIdx     map[string]int
}

func (s *Service) loadView(ctx context.Context) (*snapshotView, error) {
	entities, err := s.store.Entities().Find(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}
	collections, err := s.store.Collections().Find(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}
	return newSnapshotView(entities, collections), nil
}

func newSnapshotView(entities []domain.Entity, collections []domain.Collection) *snapshotView {
	v := &snapshotView{
		entities:    entities,
		collections: collections,
		entityIdx:   make(map[string]int, len(entities)),
		collIdx:     make(map[string]int, len(collections)),
	}
	for i, e := range entities {
		v.entityIdx[e.ID] = i
	}
	for i, c := range collections {
		v.collIdx[c.ID] = i
	}
	return v
}

func (v *snapshotView) ListEntities() []domain.Entity       { return v.entities }
func (v *snapshotView) ListCollections() []domain.Collection { return v.collections }

func (v *snapshotView) FindEntity(id string) (domain.Entity, bool) {
	i, ok := v.entityIdx[id]
	if !ok {
		return domain.Entity{}, false
	}
	return v.entities[i], true
}

func (v *snapshotView) FindCollection(id string) (domain.Collection, bool) {
	i, ok := v.collIdx[id]
	if !ok {
		return domain.Collection{}, false
	}
	return v.collections[i], true
}

// Audit evaluates the integrity rules over the current documents.
func (s *Service) Audit(ctx context.Context) (domain.Result, error) {
	var res domain.Result
	err := s.observe(ctx, "audit", func(ctx context.Context) error {
		view, err := s.loadView(ctx)
		if err != nil {
			return err
		}
		res, err = s.rules.Evaluate(ctx, view)
		return err
	})
	return res, err
}
