// Package ident allocates document identifiers.
package ident

import (
	"fmt"
	"labcore/pkg/domain"
	"sync"

	"github.com/google/uuid"
)

// Allocator hands out identifiers that are never reused.
type Allocator interface {
	NewID(kind domain.Kind) string
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(kind domain.Kind) string

// NewID calls f.
func (f AllocatorFunc) NewID(kind domain.Kind) string { return f(kind) }

// UUIDAllocator issues time ordered UUIDv7 identifiers. The kind is not part of
// the identifier.
type UUIDAllocator struct{}

// NewID returns a fresh UUID string.
func (UUIDAllocator) NewID(domain.Kind) string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Sequence issues deterministic "<prefix>-<n>" identifiers, counting per kind.
// It is intended for tests and fixtures.
type Sequence struct {
	mu       sync.Mutex
	counters map[domain.Kind]int
	prefixes map[domain.Kind]string
}

// NewSequence returns a Sequence using short default prefixes.
func NewSequence() *Sequence {
	return &Sequence{
		counters: make(map[domain.Kind]int),
		prefixes: map[domain.Kind]string{
			domain.KindEntity:       "e",
			domain.KindCollection:   "c",
			domain.KindAttribute:    "a",
			domain.KindActivity:     "act",
			domain.KindPendingWrite: "pw",
			domain.KindAttachment:   "att",
		},
	}
}

// NewID returns the next identifier for kind.
func (s *Sequence) NewID(kind domain.Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[kind]++
	prefix, ok := s.prefixes[kind]
	if !ok {
		prefix = string(kind)
	}
	return fmt.Sprintf("%s-%d", prefix, s.counters[kind])
}
