// Package escrow holds registration-time credential snapshots.
//
// The escrow is the independent trust anchor consulted during repair: a
// component is only re-signed when its identity still matches what was
// escrowed when it first registered. Snapshots are written exactly once and
// never updated, so a later compromise of the live registry cannot rewrite
// the anchor.
package escrow

import (
	"context"
	"sync"
	"time"

	"attestor/pkg/platform/sentinel"
)

// Snapshot is the escrowed view of a registration.
type Snapshot struct {
	ComponentID string
	Kind        string
	Signature   string
	EscrowedAt  time.Time
}

// InMemory is the canonical escrow store.
type InMemory struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewInMemory() *InMemory {
	return &InMemory{snapshots: make(map[string]Snapshot)}
}

// Put stores the snapshot for a component. A second Put for the same id
// fails with sentinel.ErrAlreadyUsed: the anchor is write-once.
func (s *InMemory) Put(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[snap.ComponentID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.snapshots[snap.ComponentID] = snap
	return nil
}

// Get returns the snapshot for id, or sentinel.ErrNotFound.
func (s *InMemory) Get(_ context.Context, id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return Snapshot{}, sentinel.ErrNotFound
	}
	return snap, nil
}
