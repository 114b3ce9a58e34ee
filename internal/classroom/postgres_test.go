package classroom_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SumitDutta007/ai-tutor/internal/classroom"
)

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockDB struct {
	execSQL  []string
	execArgs [][]any
	rowErr   error
	queryErr error
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, m.queryErr
}

func (m *mockDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return &mockRow{scanFunc: func(...any) error { return m.rowErr }}
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Unit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := &mockDB{rowErr: pgx.ErrNoRows, queryErr: errors.New("connection reset")}
	s := classroom.NewPostgresStore(db)

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS classrooms") {
		t.Errorf("unexpected DDL: %s", db.execSQL[0])
	}

	id, err := s.Put(ctx, classroom.Classroom{UserID: "u", Type: classroom.TypeOralExam, CreatedAt: base})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	args := db.execArgs[1]
	if args[0] != id || args[2] != "oral_exam" || string(args[4].([]byte)) != "[]" {
		t.Errorf("insert args = %v", args)
	}

	if _, err := s.Get(ctx, "x"); !errors.Is(err, classroom.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListByUser(ctx, "u"); err == nil {
		t.Error("ListByUser: expected query error")
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("TUTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUTOR_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS classrooms"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	s := classroom.NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	testStore(t, s)
}
