// Package registry stores component identity records.
//
// State is process-lifetime and in-memory only; there is deliberately no
// durable backend. All mutation goes through a single writer lock so a
// verification sweep always observes a consistent set.
package registry

import (
	"context"
	"sort"
	"sync"

	"attestor/internal/attestation/models"
	"attestor/pkg/platform/sentinel"
)

// InMemory is the canonical ComponentRegistry implementation.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.ComponentRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*models.ComponentRecord)}
}

// Create inserts a new record. Registration of an existing id fails with
// sentinel.ErrAlreadyUsed and leaves the original record untouched: one
// identity, one credential.
func (s *InMemory) Create(_ context.Context, record *models.ComponentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}

	copied := *record
	s.records[record.ID] = &copied
	return nil
}

// FindByID returns a copy of the record, or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id string) (*models.ComponentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// All returns a point-in-time snapshot of every record, ordered by id so
// sweeps and status reports are deterministic.
func (s *InMemory) All(_ context.Context) ([]*models.ComponentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ComponentRecord, 0, len(s.records))
	for _, record := range s.records {
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Execute runs an atomic validate-then-mutate against a record, holding the
// write lock for the whole callback pair. Returns a copy of the mutated
// record. validate may be nil.
func (s *InMemory) Execute(
	_ context.Context,
	id string,
	validate func(*models.ComponentRecord) error,
	mutate func(*models.ComponentRecord),
) (*models.ComponentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	if validate != nil {
		if err := validate(record); err != nil {
			return nil, err
		}
	}
	mutate(record)

	copied := *record
	return &copied, nil
}

// Len returns the number of registered components.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
