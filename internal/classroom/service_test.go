package classroom_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/SumitDutta007/ai-tutor/internal/classroom"
	"github.com/SumitDutta007/ai-tutor/internal/observe"
)

type stubPlanner struct {
	items []string
	err   error
	got   []classroom.PlanInput
}

func (p *stubPlanner) Plan(_ context.Context, in classroom.PlanInput) ([]string, error) {
	p.got = append(p.got, in)
	return p.items, p.err
}

func newService(t *testing.T, pl classroom.Planner, store classroom.Store) *classroom.Service {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	svc, err := classroom.NewService(pl, store,
		classroom.WithMetrics(m),
		classroom.WithClock(func() time.Time { return base }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestService_Create(t *testing.T) {
	t.Parallel()

	pl := &stubPlanner{items: []string{"Concept 1", "Question 1"}}
	svc := newService(t, pl, classroom.NewMemStore())
	ctx := context.Background()

	c, err := svc.Create(ctx, classroom.CreateRequest{
		UserID:   "u1",
		Notes:    "Plants\n\n  convert light.",
		Type:     classroom.TypeMixed,
		Standard: "6",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == "" || !c.Finalized || !c.CreatedAt.Equal(base) || len(c.Items) != 2 {
		t.Errorf("Create returned %+v", c)
	}
	if pl.got[0].Notes != "Plants convert light." {
		t.Errorf("planner got unprocessed notes %q", pl.got[0].Notes)
	}

	got, err := svc.Get(ctx, c.ID)
	if err != nil || got.ID != c.ID {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	list, err := svc.ListByUser(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUser: %v, %v", list, err)
	}
}

func TestService_CreateInvalid(t *testing.T) {
	t.Parallel()

	pl := &stubPlanner{items: []string{"x"}}
	svc := newService(t, pl, classroom.NewMemStore())

	for _, req := range []classroom.CreateRequest{
		{Notes: "n", Type: classroom.TypeExplain},
		{UserID: "u", Notes: "n", Type: "lecture"},
		{UserID: "u", Notes: "☃☃", Type: classroom.TypeExplain},
	} {
		if _, err := svc.Create(context.Background(), req); !errors.Is(err, classroom.ErrInvalidRequest) {
			t.Errorf("Create(%+v): expected ErrInvalidRequest, got %v", req, err)
		}
	}
	if len(pl.got) != 0 {
		t.Errorf("planner called %d times for invalid requests", len(pl.got))
	}
}

func TestService_PlannerError(t *testing.T) {
	t.Parallel()

	store := classroom.NewMemStore()
	svc := newService(t, &stubPlanner{err: errors.New("classroom: reply contains no items")}, store)
	_, err := svc.Create(context.Background(), classroom.CreateRequest{UserID: "u", Notes: "n", Type: classroom.TypeExplain})
	if err == nil || !strings.Contains(err.Error(), "no items") {
		t.Fatalf("expected planner error, got %v", err)
	}
	var pe *classroom.PlanError
	if !errors.As(err, &pe) {
		t.Errorf("planner failure not reported as PlanError: %T", err)
	}
	if list, _ := store.ListByUser(context.Background(), "u"); len(list) != 0 {
		t.Error("classroom stored despite planner failure")
	}
}

func TestService_GetNotFound(t *testing.T) {
	t.Parallel()

	svc := newService(t, &stubPlanner{}, classroom.NewMemStore())
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, classroom.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, classroom.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
