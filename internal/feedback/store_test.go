package feedback_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

func sampleRecord(classroomID, userID string, score float64) feedback.Record {
	return feedback.Record{
		ClassroomID: classroomID,
		UserID:      userID,
		Assessment: feedback.Assessment{
			TotalScore: score,
			CategoryScores: []feedback.CategoryScore{
				{Name: feedback.CategoryCommunication, Score: score, Comment: "c"},
				{Name: feedback.CategoryTechnical, Score: score, Comment: "t"},
				{Name: feedback.CategoryProblemSolve, Score: score, Comment: "p"},
				{Name: feedback.CategoryConfidence, Score: score, Comment: "k"},
			},
			Strengths:           []string{"s"},
			AreasForImprovement: []string{"a"},
			FinalAssessment:     "final",
		},
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SessionStats: transcript.Stats{TotalResponses: 3, AvgResponseLength: 12.5},
	}
}

// testStore runs the Store contract against a fresh store from newStore.
func testStore(t *testing.T, newStore func(t *testing.T) feedback.Store) {
	ctx := context.Background()

	t.Run("put assigns unique ids and ignores caller id", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord("c1", "u1", 50)
		rec.ID = "caller-chosen"
		id1, err := s.Put(ctx, rec)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		id2, err := s.Put(ctx, rec)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if id1 == "" || id1 == id2 || id1 == "caller-chosen" {
			t.Fatalf("ids not unique/generated: %q, %q", id1, id2)
		}
	})

	t.Run("get returns stored record", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Put(ctx, sampleRecord("c1", "u1", 61))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != id || got.TotalScore != 61 || len(got.CategoryScores) != 4 {
			t.Errorf("Get: unexpected record %+v", got)
		}
		if got.SessionStats.AvgResponseLength != 12.5 {
			t.Errorf("SessionStats: got %+v", got.SessionStats)
		}
		if !got.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("CreatedAt: got %v", got.CreatedAt)
		}
	})

	t.Run("get unknown id", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, feedback.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("find one returns oldest match", func(t *testing.T) {
		s := newStore(t)
		first, _ := s.Put(ctx, sampleRecord("c1", "u1", 10))
		_, _ = s.Put(ctx, sampleRecord("c1", "u2", 20))
		_, _ = s.Put(ctx, sampleRecord("c1", "u1", 30))

		got, err := s.FindOne(ctx, "c1", "u1")
		if err != nil {
			t.Fatalf("FindOne: %v", err)
		}
		if got.ID != first {
			t.Errorf("FindOne: got %q, want oldest %q", got.ID, first)
		}
		if _, err := s.FindOne(ctx, "c2", "u1"); !errors.Is(err, feedback.ErrNotFound) {
			t.Errorf("FindOne unknown pair: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		ids := make([]string, 16)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.Put(ctx, sampleRecord("c1", "u1", float64(i)))
				if err != nil {
					t.Errorf("Put: %v", err)
				}
				ids[i] = id
			}()
		}
		wg.Wait()
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = true
			if _, err := s.Get(ctx, id); err != nil {
				t.Errorf("Get(%q): %v", id, err)
			}
		}
	})
}

func TestMemStore(t *testing.T) {
	t.Parallel()
	testStore(t, func(*testing.T) feedback.Store { return feedback.NewMemStore() })
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := feedback.NewMemStore()
	id, _ := s.Put(ctx, sampleRecord("c", "u", 1))
	got, _ := s.Get(ctx, id)
	got.Strengths[0] = "mutated"
	again, _ := s.Get(ctx, id)
	if again.Strengths[0] != "s" {
		t.Error("MemStore exposed internal slice")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	testStore(t, func(t *testing.T) feedback.Store {
		s, err := feedback.NewFileStore(filepath.Join(t.TempDir(), "feedback.jsonl"))
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return s
	})
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	s1, _ := feedback.NewFileStore(path)
	id, err := s1.Put(ctx, sampleRecord("c", "u", 77))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	s2, _ := feedback.NewFileStore(path)
	got, err := s2.FindOne(ctx, "c", "u")
	if err != nil {
		t.Fatalf("FindOne after reopen: %v", err)
	}
	if got.ID != id || got.TotalScore != 77 {
		t.Errorf("reopened record: %+v", got)
	}
}

func TestFileStore_RecoversFromInterruptedWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	s, _ := feedback.NewFileStore(path)
	first, err := s.Put(ctx, sampleRecord("c1", "u1", 50))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"id":"torn","classroomId":"c`)
	_ = f.Close()

	if _, err := s.FindOne(ctx, "nobody", "u1"); !errors.Is(err, feedback.ErrNotFound) {
		t.Errorf("FindOne over torn tail: %v, want ErrNotFound", err)
	}

	second, err := s.Put(ctx, sampleRecord("c2", "u1", 60))
	if err != nil {
		t.Fatalf("Put after torn line: %v", err)
	}
	for _, id := range []string{first, second} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("Get(%s): %v", id, err)
		}
	}
	if _, err := s.FindOne(ctx, "nobody", "u1"); !errors.Is(err, feedback.ErrNotFound) {
		t.Errorf("FindOne after repair: %v, want ErrNotFound", err)
	}
}
