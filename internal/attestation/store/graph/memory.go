// Package graph stores directed verification edges between registered
// components. Edges assert that the source's trust is checked against the
// target. Edge sets are per source: no duplicates, and (matching the
// behavior this service replaces) no self-reference restriction.
package graph

import (
	"context"
	"sort"
	"sync"
)

// InMemory is the canonical VerificationGraph implementation.
type InMemory struct {
	mu    sync.RWMutex
	edges map[string]map[string]struct{}
	total int
}

func NewInMemory() *InMemory {
	return &InMemory{edges: make(map[string]map[string]struct{})}
}

// Link inserts the edge (source, target). Inserting an existing edge is a
// no-op. Returns true when a new edge was added. Existence of the endpoints
// is the service's concern, not the store's.
func (s *InMemory) Link(_ context.Context, source, target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.edges[source]
	if !ok {
		set = make(map[string]struct{})
		s.edges[source] = set
	}
	if _, exists := set[target]; exists {
		return false
	}
	set[target] = struct{}{}
	s.total++
	return true
}

// EdgesFrom returns a sorted copy of the source's outgoing edge set,
// possibly empty.
func (s *InMemory) EdgesFrom(_ context.Context, source string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.edges[source]
	out := make([]string, 0, len(set))
	for target := range set {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// TotalEdges returns the number of distinct edges in the graph.
func (s *InMemory) TotalEdges(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
