package record

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is a thread-safe in-memory Store. It backs development mode
// (STORE_BACKEND=memory) and package tests. Records are deep-copied on the
// way in and out, so finalized state can never be mutated through a retained
// pointer.
type MemStore struct {
	mu      sync.RWMutex
	records map[PatientID]*PatientRecord
}

// NewMemStore creates a new empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[PatientID]*PatientRecord)}
}

// Create implements Store.
func (s *MemStore) Create(ctx context.Context, rec *PatientRecord) error {
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}
	if rec.Status != StatusFinalized {
		return fmt.Errorf("%w: record is %s, not finalized", ErrWriteFailure, rec.Status)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: empty patient id", ErrWriteFailure)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateID
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, id PatientID) (*PatientRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, ctxErr(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != StatusFinalized {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, id PatientID) error {
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Len reports the number of stored records. Test hook; deliberately not part
// of the Store contract.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
