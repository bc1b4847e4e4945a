// Package sequencetest provides an in-memory folio registry for tests.
package sequencetest

import (
	"context"
	"sync"

	"github.com/cimiento/cimiento/internal/sequence"
	"github.com/cimiento/cimiento/internal/shared"
)

// Store is an in-process sequence.Store with the same uniqueness guarantee as
// the document_folios registry.
type Store struct {
	mu     sync.Mutex
	folios map[sequence.Scope]map[int64]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{folios: make(map[sequence.Scope]map[int64]struct{})}
}

// MaxFolio implements sequence.Store.
func (m *Store) MaxFolio(_ context.Context, scope sequence.Scope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for folio := range m.folios[scope] {
		if folio > max {
			max = folio
		}
	}
	return max, nil
}

// Reserve implements sequence.Store.
func (m *Store) Reserve(_ context.Context, scope sequence.Scope, folio int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.folios[scope]
	if !ok {
		set = make(map[int64]struct{})
		m.folios[scope] = set
	}
	if _, taken := set[folio]; taken {
		return &shared.TransactionAbortedError{}
	}
	set[folio] = struct{}{}
	return nil
}

// Clone copies the registry, used to emulate rollback.
func (m *Store) Clone() *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := NewStore()
	for scope, set := range m.folios {
		copied := make(map[int64]struct{}, len(set))
		for folio := range set {
			copied[folio] = struct{}{}
		}
		out.folios[scope] = copied
	}
	return out
}
