package core

import (
	"context"
	"errors"
	"labcore/internal/ident"
	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
	"slices"
	"sync"
	"testing"
	"time"
)

var errInjected = errors.New("injected store failure")

// faultCollection fails UpdateOne or DeleteOne for ids listed in the
// corresponding set and delegates everything else.
type faultCollection[T domain.Document] struct {
	domain.DocumentCollection[T]
	mu         sync.Mutex
	failUpdate map[string]bool
	failDelete map[string]bool
	failInsert bool
}

func newFaultCollection[T domain.Document](inner domain.DocumentCollection[T]) *faultCollection[T] {
	return &faultCollection[T]{
		DocumentCollection: inner,
		failUpdate:         make(map[string]bool),
		failDelete:         make(map[string]bool),
	}
}

func (c *faultCollection[T]) breakUpdate(id string, broken bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failUpdate[id] = broken
}

func (c *faultCollection[T]) breakDelete(id string, broken bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failDelete[id] = broken
}

func (c *faultCollection[T]) InsertOne(ctx context.Context, doc T) error {
	c.mu.Lock()
	fail := c.failInsert
	c.mu.Unlock()
	if fail {
		return errInjected
	}
	return c.DocumentCollection.InsertOne(ctx, doc)
}

func (c *faultCollection[T]) UpdateOne(ctx context.Context, id string, patch domain.Patch[T]) (domain.UpdateResult, error) {
	c.mu.Lock()
	fail := c.failUpdate[id]
	c.mu.Unlock()
	if fail {
		return domain.UpdateResult{}, errInjected
	}
	return c.DocumentCollection.UpdateOne(ctx, id, patch)
}

func (c *faultCollection[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	fail := c.failDelete[id]
	c.mu.Unlock()
	if fail {
		return false, errInjected
	}
	return c.DocumentCollection.DeleteOne(ctx, id)
}

type faultStore struct {
	*memory.Store
	entities    *faultCollection[domain.Entity]
	collections *faultCollection[domain.Collection]
	pending     *faultCollection[domain.PendingWrite]
}

func newFaultStore() *faultStore {
	inner := memory.NewStore()
	return &faultStore{
		Store:       inner,
		entities:    newFaultCollection(inner.Entities()),
		collections: newFaultCollection(inner.Collections()),
		pending:     newFaultCollection(inner.PendingWrites()),
	}
}

func (s *faultStore) Entities() domain.DocumentCollection[domain.Entity] { return s.entities }
func (s *faultStore) Collections() domain.DocumentCollection[domain.Collection] {
	return s.collections
}
func (s *faultStore) PendingWrites() domain.DocumentCollection[domain.PendingWrite] {
	return s.pending
}

// captureActivity keeps activity entries in memory.
type captureActivity struct {
	mu      sync.Mutex
	entries []domain.Activity
}

func (c *captureActivity) Record(_ context.Context, a domain.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, a)
}

func (c *captureActivity) details() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, a := range c.entries {
		out = append(out, a.Details)
	}
	return out
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithIDAllocator(ident.NewSequence()), WithClock(func() time.Time { return fixedNow })}
	return NewInMemoryService(append(base, opts...)...)
}

func newFaultService(t *testing.T, opts ...Option) (*Service, *faultStore) {
	t.Helper()
	store := newFaultStore()
	base := []Option{WithIDAllocator(ident.NewSequence()), WithClock(func() time.Time { return fixedNow })}
	return NewService(store, append(base, opts...)...), store
}

func mustEntity(t *testing.T, svc *Service, in domain.NewEntity) domain.Entity {
	t.Helper()
	e, err := svc.CreateEntity(context.Background(), in)
	if err != nil {
		t.Fatalf("create entity %q: %v", in.Name, err)
	}
	return e
}

func mustCollection(t *testing.T, svc *Service, in domain.NewCollection) domain.Collection {
	t.Helper()
	c, err := svc.CreateCollection(context.Background(), in)
	if err != nil {
		t.Fatalf("create collection %q: %v", in.Name, err)
	}
	return c
}

func reload(t *testing.T, svc *Service, id string) domain.Entity {
	t.Helper()
	e, err := svc.GetEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("get entity %s: %v", id, err)
	}
	return e
}

func reloadCollection(t *testing.T, svc *Service, id string) domain.Collection {
	t.Helper()
	c, err := svc.GetCollection(context.Background(), id)
	if err != nil {
		t.Fatalf("get collection %s: %v", id, err)
	}
	return c
}

func pendingCount(t *testing.T, svc *Service) int {
	t.Helper()
	records, err := svc.Store().PendingWrites().Find(context.Background(), domain.Filter{})
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	return len(records)
}

// assertSymmetric fails when any origin, product or membership reference is
// not mirrored on the other side.
func assertSymmetric(t *testing.T, svc *Service) {
	t.Helper()
	res, err := svc.Audit(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(res.Violations) > 0 {
		t.Fatalf("expected no violations, got %+v", res.Violations)
	}
}

func ids(refs []domain.Reference) []string {
	return refIDs(refs)
}

func sameIDs(got, want []string) bool {
	return slices.Equal(got, want)
}
