package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the feedback table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// There is deliberately no unique constraint on (classroom_id, user_id):
// repeated scoring of the same session produces separate records.
const Schema = `
CREATE TABLE IF NOT EXISTS feedback (
    id                    TEXT PRIMARY KEY,
    seq                   BIGSERIAL,
    classroom_id          TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    total_score           DOUBLE PRECISION NOT NULL,
    category_scores       JSONB NOT NULL DEFAULT '[]',
    strengths             JSONB NOT NULL DEFAULT '[]',
    areas_for_improvement JSONB NOT NULL DEFAULT '[]',
    final_assessment      TEXT NOT NULL DEFAULT '',
    total_responses       INTEGER NOT NULL DEFAULT 0,
    avg_response_length   DOUBLE PRECISION NOT NULL DEFAULT 0,
    rubric_version        TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_feedback_classroom_user ON feedback(classroom_id, user_id, seq);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. List-valued fields are
// stored as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is responsible
// for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("feedback: migrate: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, rec Record) (string, error) {
	catJSON, err := json.Marshal(emptySlice(rec.CategoryScores))
	if err != nil {
		return "", fmt.Errorf("feedback: marshal category_scores: %w", err)
	}
	strJSON, err := json.Marshal(emptySlice(rec.Strengths))
	if err != nil {
		return "", fmt.Errorf("feedback: marshal strengths: %w", err)
	}
	impJSON, err := json.Marshal(emptySlice(rec.AreasForImprovement))
	if err != nil {
		return "", fmt.Errorf("feedback: marshal areas_for_improvement: %w", err)
	}

	const query = `
		INSERT INTO feedback (
			id, classroom_id, user_id, total_score,
			category_scores, strengths, areas_for_improvement, final_assessment,
			total_responses, avg_response_length, rubric_version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	id := uuid.NewString()
	_, err = s.db.Exec(ctx, query,
		id, rec.ClassroomID, rec.UserID, rec.TotalScore,
		catJSON, strJSON, impJSON, rec.FinalAssessment,
		rec.SessionStats.TotalResponses, rec.SessionStats.AvgResponseLength,
		rec.RubricVersion, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("feedback: insert: %w", err)
	}
	return id, nil
}

const selectColumns = `
	SELECT id, classroom_id, user_id, total_score,
	       category_scores, strengths, areas_for_improvement, final_assessment,
	       total_responses, avg_response_length, rubric_version, created_at
	FROM feedback`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		return Record{}, wrapLookup(err, "get "+id)
	}
	return rec, nil
}

// FindOne implements Store.
func (s *PostgresStore) FindOne(ctx context.Context, classroomID, userID string) (Record, error) {
	const where = ` WHERE classroom_id = $1 AND user_id = $2 ORDER BY seq LIMIT 1`
	rec, err := scanRecord(s.db.QueryRow(ctx, selectColumns+where, classroomID, userID))
	if err != nil {
		return Record{}, wrapLookup(err, "find")
	}
	return rec, nil
}

// Ping implements Store. It delegates to the pool when available.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var catJSON, strJSON, impJSON []byte
	err := row.Scan(
		&rec.ID, &rec.ClassroomID, &rec.UserID, &rec.TotalScore,
		&catJSON, &strJSON, &impJSON, &rec.FinalAssessment,
		&rec.SessionStats.TotalResponses, &rec.SessionStats.AvgResponseLength,
		&rec.RubricVersion, &rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(catJSON, &rec.CategoryScores); err != nil {
		return Record{}, fmt.Errorf("unmarshal category_scores: %w", err)
	}
	if err := json.Unmarshal(strJSON, &rec.Strengths); err != nil {
		return Record{}, fmt.Errorf("unmarshal strengths: %w", err)
	}
	if err := json.Unmarshal(impJSON, &rec.AreasForImprovement); err != nil {
		return Record{}, fmt.Errorf("unmarshal areas_for_improvement: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func wrapLookup(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("feedback: %s: %w", op, err)
}

func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
