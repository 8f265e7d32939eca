package ident

import (
	"labcore/pkg/domain"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDAllocatorNeverRepeats(t *testing.T) {
	var alloc UUIDAllocator
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := alloc.NewID(domain.KindEntity)
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("invalid uuid %q: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSequenceCountsPerKind(t *testing.T) {
	seq := NewSequence()
	if got := seq.NewID(domain.KindEntity); got != "e-1" {
		t.Fatalf("expected e-1, got %s", got)
	}
	if got := seq.NewID(domain.KindCollection); got != "c-1" {
		t.Fatalf("expected c-1, got %s", got)
	}
	if got := seq.NewID(domain.KindEntity); got != "e-2" {
		t.Fatalf("expected e-2, got %s", got)
	}
	if got := seq.NewID(domain.Kind("widgets")); got != "widgets-1" {
		t.Fatalf("expected widgets-1, got %s", got)
	}
}

func TestSequenceConcurrentUse(t *testing.T) {
	seq := NewSequence()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := seq.NewID(domain.KindEntity)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 400 {
		t.Fatalf("expected 400 unique ids, got %d", len(seen))
	}
}

func TestAllocatorFunc(t *testing.T) {
	alloc := AllocatorFunc(func(k domain.Kind) string { return "fixed-" + string(k) })
	if alloc.NewID(domain.KindAttribute) != "fixed-attributes" {
		t.Fatalf("allocator func not invoked")
	}
}
