package memory

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
	"sync"
)

// collection is a mutex guarded map of deep-cloned documents that remembers
// insertion order.
type collection[T domain.Record[T]] struct {
	mu       sync.RWMutex
	kind     domain.Kind
	docs     map[string]T
	order    []string
	onChange func() error
}

func newCollection[T domain.Record[T]](kind domain.Kind, onChange func() error) *collection[T] {
	return &collection[T]{kind: kind, docs: make(map[string]T), onChange: onChange}
}

func (c *collection[T]) FindOne(_ context.Context, id string) (T, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	return doc.Clone(), true, nil
}

func (c *collection[T]) InsertOne(_ context.Context, doc T) error {
	id := doc.DocumentID()
	if id == "" {
		return fmt.Errorf("%w: %s document without id", domain.ErrInvalid, c.kind)
	}
	c.mu.Lock()
	if _, exists := c.docs[id]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s %s", domain.ErrDuplicateID, c.kind, id)
	}
	c.docs[id] = doc.Clone()
	c.order = append(c.order, id)
	c.mu.Unlock()
	return c.changed()
}

func (c *collection[T]) UpdateOne(_ context.Context, id string, patch domain.Patch[T]) (domain.UpdateResult, error) {
	c.mu.Lock()
	current, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return domain.UpdateResult{}, nil
	}
	next := patch.Apply(current)
	if domain.SameDocument(current, next) {
		c.mu.Unlock()
		return domain.UpdateResult{Matched: 1}, nil
	}
	c.docs[id] = next
	c.mu.Unlock()
	return domain.UpdateResult{Matched: 1, Modified: 1}, c.changed()
}

func (c *collection[T]) DeleteOne(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	if _, ok := c.docs[id]; !ok {
		c.mu.Unlock()
		return false, nil
	}
	delete(c.docs, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.mu.Unlock()
	return true, c.changed()
}

func (c *collection[T]) Find(_ context.Context, filter domain.Filter) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		if !filter.Matches(doc) {
			continue
		}
		out = append(out, doc.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (c *collection[T]) all() []T {
	docs, _ := c.Find(context.Background(), domain.Filter{})
	return docs
}

func (c *collection[T]) replace(docs []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]T, len(docs))
	c.order = c.order[:0]
	for _, doc := range docs {
		id := doc.DocumentID()
		if _, dup := c.docs[id]; dup {
			continue
		}
		c.docs[id] = doc.Clone()
		c.order = append(c.order, id)
	}
}

func (c *collection[T]) changed() error {
	if c.onChange == nil {
		return nil
	}
	if err := c.onChange(); err != nil {
		return fmt.Errorf("memory store %s: %w", c.kind, err)
	}
	return nil
}
