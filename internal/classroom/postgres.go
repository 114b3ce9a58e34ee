package classroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the classrooms table.
const Schema = `
CREATE TABLE IF NOT EXISTS classrooms (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    type       TEXT NOT NULL,
    standard   TEXT NOT NULL DEFAULT '',
    items      JSONB NOT NULL DEFAULT '[]',
    finalized  BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_classrooms_user ON classrooms(user_id, created_at DESC);
`

// DB is the database interface used by [PostgresStore]. *pgxpool.Pool
// satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. Call
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("classroom: migrate: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, c Classroom) (string, error) {
	items := c.Items
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("classroom: marshal items: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.Exec(ctx, `
		INSERT INTO classrooms (id, user_id, type, standard, items, finalized, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, c.UserID, string(c.Type), c.Standard, itemsJSON, c.Finalized, c.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("classroom: insert: %w", err)
	}
	return id, nil
}

const selectColumns = `SELECT id, user_id, type, standard, items, finalized, created_at FROM classrooms`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (Classroom, error) {
	c, err := scanClassroom(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Classroom{}, ErrNotFound
	}
	if err != nil {
		return Classroom{}, fmt.Errorf("classroom: get %s: %w", id, err)
	}
	return c, nil
}

// ListByUser implements Store.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Classroom, error) {
	rows, err := s.db.Query(ctx, selectColumns+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("classroom: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Classroom, error) {
		return scanClassroom(row)
	})
	if err != nil {
		return nil, fmt.Errorf("classroom: list: %w", err)
	}
	return out, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func scanClassroom(row pgx.Row) (Classroom, error) {
	var (
		c         Classroom
		typ       string
		itemsJSON []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &typ, &c.Standard, &itemsJSON, &c.Finalized, &c.CreatedAt); err != nil {
		return Classroom{}, err
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return Classroom{}, fmt.Errorf("unmarshal items: %w", err)
	}
	c.Type = SessionType(typ)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
