package feedback

import "context"

// Store persists feedback records. Records are immutable once written; Put
// always creates a new record and never overwrites.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores rec under a newly generated unique ID and returns it.
	// Any ID already set on rec is ignored.
	Put(ctx context.Context, rec Record) (string, error)

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// FindOne returns the oldest record for the (classroomID, userID) pair,
	// or ErrNotFound.
	FindOne(ctx context.Context, classroomID, userID string) (Record, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

func cloneRecord(r Record) Record {
	r.CategoryScores = append([]CategoryScore(nil), r.CategoryScores...)
	r.Strengths = append([]string(nil), r.Strengths...)
	r.AreasForImprovement = append([]string(nil), r.AreasForImprovement...)
	return r
}
