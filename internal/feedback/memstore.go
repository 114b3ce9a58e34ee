package feedback

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemStore is a thread-safe, in-memory Store. Records are kept in insertion
// order; data is lost when the process exits.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]int)}
}

// Put implements Store.
func (s *MemStore) Put(_ context.Context, rec Record) (string, error) {
	rec = cloneRecord(rec)
	rec.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(s.records[i]), nil
}

// FindOne implements Store.
func (s *MemStore) FindOne(_ context.Context, classroomID, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ClassroomID == classroomID && r.UserID == userID {
			return cloneRecord(r), nil
		}
	}
	return Record{}, ErrNotFound
}

// Ping implements Store. A MemStore is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
