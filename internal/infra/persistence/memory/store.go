// Package memory provides an in-memory implementation of the document store
// used for tests and ephemeral environments. A store opened with a path also
// persists a JSON snapshot after every mutation.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"labcore/pkg/domain"
	"os"
	"path/filepath"
	"sync"
)

var _ domain.DocumentStore = (*Store)(nil)

// Snapshot captures a point-in-time clone of the store state in insertion order.
type Snapshot struct {
	Entities      []domain.Entity       `json:"entities"`
	Collections   []domain.Collection   `json:"collections"`
	Attributes    []domain.Attribute    `json:"attributes"`
	Activity      []domain.Activity     `json:"activity"`
	PendingWrites []domain.PendingWrite `json:"pending_writes"`
}

// Store holds one in-memory collection per document kind.
type Store struct {
	entities    *collection[domain.Entity]
	collections *collection[domain.Collection]
	attributes  *collection[domain.Attribute]
	activity    *collection[domain.Activity]
	pending     *collection[domain.PendingWrite]

	persistMu sync.Mutex
	path      string
}

// NewStore constructs an empty, purely in-memory store.
func NewStore() *Store {
	s := &Store{}
	s.entities = newCollection[domain.Entity](domain.KindEntity, s.persist)
	s.collections = newCollection[domain.Collection](domain.KindCollection, s.persist)
	s.attributes = newCollection[domain.Attribute](domain.KindAttribute, s.persist)
	s.activity = newCollection[domain.Activity](domain.KindActivity, s.persist)
	s.pending = newCollection[domain.PendingWrite](domain.KindPendingWrite, s.persist)
	return s
}

// Open returns a store persisted to path as a JSON snapshot. An existing
// snapshot is loaded; a missing file starts empty.
func Open(path string) (*Store, error) {
	s := NewStore()
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read snapshot: %w", err)
	default:
		var snapshot Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		s.ImportState(snapshot)
	}
	s.path = path
	return s, nil
}

func (s *Store) Entities() domain.DocumentCollection[domain.Entity]       { return s.entities }
func (s *Store) Collections() domain.DocumentCollection[domain.Collection] { return s.collections }
func (s *Store) Attributes() domain.DocumentCollection[domain.Attribute]   { return s.attributes }
func (s *Store) Activity() domain.DocumentCollection[domain.Activity]      { return s.activity }
func (s *Store) PendingWrites() domain.DocumentCollection[domain.PendingWrite] {
	return s.pending
}

// Close flushes the snapshot when the store is file backed.
func (s *Store) Close(context.Context) error {
	return s.persist()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	return Snapshot{
		Entities:      s.entities.all(),
		Collections:   s.collections.all(),
		Attributes:    s.attributes.all(),
		Activity:      s.activity.all(),
		PendingWrites: s.pending.all(),
	}
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.entities.replace(snapshot.Entities)
	s.collections.replace(snapshot.Collections)
	s.attributes.replace(snapshot.Attributes)
	s.activity.replace(snapshot.Activity)
	s.pending.replace(snapshot.PendingWrites)
}

func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	data, err := json.MarshalIndent(s.ExportState(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
