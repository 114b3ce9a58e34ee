package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SumitDutta007/ai-tutor/internal/observe"
)

// CreateRequest asks for a new classroom built from the learner's notes.
type CreateRequest struct {
	UserID   string      `json:"userId" validate:"required"`
	Notes    string      `json:"content" validate:"required"`
	Type     SessionType `json:"type" validate:"required,oneof=explain oral_exam mixed"`
	Standard string      `json:"standard" validate:"required"`
}

// Service creates and looks up classrooms.
type Service struct {
	planner Planner
	store   Store
	metrics *observe.Metrics
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service planning with planner and persisting to store.
func NewService(planner Planner, store Store, opts ...ServiceOption) (*Service, error) {
	if planner == nil {
		return nil, errors.New("classroom: planner must not be nil")
	}
	if store == nil {
		return nil, errors.New("classroom: store must not be nil")
	}
	s := &Service{planner: planner, store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Create plans and stores a classroom and returns it with its new ID.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Classroom, error) {
	ctx, span := observe.StartSpan(ctx, "classroom.create")
	defer span.End()

	if strings.TrimSpace(req.UserID) == "" {
		return Classroom{}, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if !req.Type.Valid() {
		return Classroom{}, fmt.Errorf("%w: unknown session type %q", ErrInvalidRequest, req.Type)
	}
	notes := PreprocessNotes(req.Notes)
	if notes == "" {
		return Classroom{}, fmt.Errorf("%w: notes are empty", ErrInvalidRequest)
	}

	items, err := s.planner.Plan(ctx, PlanInput{
		UserID:   req.UserID,
		Notes:    notes,
		Type:     req.Type,
		Standard: req.Standard,
	})
	if err != nil {
		observe.FailSpan(span, err, "plan")
		return Classroom{}, &PlanError{Err: err}
	}

	c := Classroom{
		UserID:    req.UserID,
		Type:      req.Type,
		Standard:  req.Standard,
		Items:     items,
		Finalized: true,
		CreatedAt: s.now().UTC(),
	}
	id, err := s.store.Put(ctx, c)
	if err != nil {
		observe.FailSpan(span, err, "persistence")
		return Classroom{}, err
	}
	c.ID = id

	s.metrics.RecordClassroomCreated(ctx, string(c.Type))
	observe.Logger(ctx).Info("classroom: created",
		"classroom_id", c.ID, "user_id", c.UserID, "type", c.Type, "items", len(c.Items))
	return c, nil
}

// Get returns the classroom with the given ID, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Classroom, error) {
	if id == "" {
		return Classroom{}, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return s.store.Get(ctx, id)
}

// ListByUser returns the user's classrooms, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Classroom, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	return s.store.ListByUser(ctx, userID)
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
