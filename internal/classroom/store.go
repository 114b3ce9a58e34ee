package classroom

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/SumitDutta007/ai-tutor/internal/jsonl"
)

// Store persists classrooms. Implementations must be safe for concurrent use.
type Store interface {
	// Put stores c under a newly generated ID and returns it.
	Put(ctx context.Context, c Classroom) (string, error)

	// Get returns the classroom with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Classroom, error)

	// ListByUser returns the user's classrooms, newest first.
	ListByUser(ctx context.Context, userID string) ([]Classroom, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// newestFirst orders by CreatedAt descending, keeping insertion order
// reversed for equal timestamps.
func newestFirst(cs []Classroom) []Classroom {
	slices.Reverse(cs)
	slices.SortStableFunc(cs, func(a, b Classroom) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return cs
}

// ── In-memory ──────────────────────────────────────────────────────────────

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.RWMutex
	items []Classroom
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore { return &MemStore{} }

// Put implements Store.
func (s *MemStore) Put(_ context.Context, c Classroom) (string, error) {
	c = clone(c)
	c.ID = uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, c)
	return c.ID, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string) (Classroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		if c.ID == id {
			return clone(c), nil
		}
	}
	return Classroom{}, ErrNotFound
}

// ListByUser implements Store.
func (s *MemStore) ListByUser(_ context.Context, userID string) ([]Classroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Classroom
	for _, c := range s.items {
		if c.UserID == userID {
			out = append(out, clone(c))
		}
	}
	return newestFirst(out), nil
}

// Ping implements Store.
func (s *MemStore) Ping(context.Context) error { return nil }

// ── JSON lines file ────────────────────────────────────────────────────────

// FileStore is a Store backed by an append-only JSON lines file.
type FileStore struct {
	log *jsonl.Log[Classroom]
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that writes to path.
func NewFileStore(path string) (*FileStore, error) {
	l, err := jsonl.Open[Classroom](path)
	if err != nil {
		return nil, fmt.Errorf("classroom: open file store: %w", err)
	}
	return &FileStore{log: l}, nil
}

// Put implements Store.
func (fs *FileStore) Put(_ context.Context, c Classroom) (string, error) {
	c.ID = uuid.NewString()
	if err := fs.log.Append(c); err != nil {
		return "", fmt.Errorf("classroom: %w", err)
	}
	return c.ID, nil
}

// Get implements Store.
func (fs *FileStore) Get(_ context.Context, id string) (Classroom, error) {
	var (
		found Classroom
		ok    bool
	)
	err := fs.log.Scan(func(c Classroom) bool {
		if c.ID == id {
			found, ok = c, true
			return false
		}
		return true
	})
	if err != nil {
		return Classroom{}, fmt.Errorf("classroom: %w", err)
	}
	if !ok {
		return Classroom{}, ErrNotFound
	}
	return found, nil
}

// ListByUser implements Store.
func (fs *FileStore) ListByUser(_ context.Context, userID string) ([]Classroom, error) {
	var out []Classroom
	err := fs.log.Scan(func(c Classroom) bool {
		if c.UserID == userID {
			out = append(out, c)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("classroom: %w", err)
	}
	return newestFirst(out), nil
}

// Ping implements Store.
func (fs *FileStore) Ping(context.Context) error { return fs.log.Ping() }
