package feedback

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/SumitDutta007/ai-tutor/internal/jsonl"
)

// FileStore persists feedback as append-only JSON lines in a local file.
// Lookups scan the file, so it suits one host with a modest number of
// sessions.
type FileStore struct {
	log *jsonl.Log[Record]
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that writes to path. The file is created
// on the first Put.
func NewFileStore(path string) (*FileStore, error) {
	l, err := jsonl.Open[Record](path)
	if err != nil {
		return nil, fmt.Errorf("feedback: open file store: %w", err)
	}
	return &FileStore{log: l}, nil
}

// Put implements Store.
func (fs *FileStore) Put(_ context.Context, rec Record) (string, error) {
	rec.ID = uuid.NewString()
	if err := fs.log.Append(rec); err != nil {
		return "", fmt.Errorf("feedback: %w", err)
	}
	return rec.ID, nil
}

// Get implements Store.
func (fs *FileStore) Get(ctx context.Context, id string) (Record, error) {
	return fs.first(ctx, func(r Record) bool { return r.ID == id })
}

// FindOne implements Store.
func (fs *FileStore) FindOne(ctx context.Context, classroomID, userID string) (Record, error) {
	return fs.first(ctx, func(r Record) bool {
		return r.ClassroomID == classroomID && r.UserID == userID
	})
}

// Ping implements Store.
func (fs *FileStore) Ping(context.Context) error {
	return fs.log.Ping()
}

func (fs *FileStore) first(ctx context.Context, match func(Record) bool) (Record, error) {
	var (
		found Record
		ok    bool
	)
	err := fs.log.Scan(func(r Record) bool {
		if ctx.Err() != nil {
			return false
		}
		if match(r) {
			found, ok = r, true
			return false
		}
		return true
	})
	if err != nil {
		return Record{}, fmt.Errorf("feedback: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return found, nil
}
