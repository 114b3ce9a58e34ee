package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SumitDutta007/ai-tutor/internal/observe"
	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

// DefaultTimeout bounds a single model call when no WithTimeout option is given.
const DefaultTimeout = 60 * time.Second

// Request is the input of CreateFeedback.
type Request struct {
	ClassroomID string           `json:"classroomId"`
	UserID      string           `json:"userId"`
	Transcript  transcript.Input `json:"transcript"`
}

// Outcome is the caller-facing result of CreateFeedback: either
// {success: true, feedbackId} or {success: false, error}.
type Outcome struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId,omitempty"`
	Error      string `json:"error,omitempty"`

	// Kind is the ErrorKind of the failure; empty on success.
	Kind string `json:"-"`
}

// Pipeline runs transcript normalisation, prompt rendering, generation,
// validation and persistence for one scoring request at a time per call.
// A Pipeline holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	gen       Generator
	store     Store
	rubric    atomic.Pointer[Rubric]
	validator Validator
	timeout   time.Duration
	metrics   *observe.Metrics
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRubric sets the initial rubric. Default: DefaultRubric().
func WithRubric(r Rubric) Option {
	return func(p *Pipeline) { p.rubric.Store(&r) }
}

// WithScorePolicy sets how out-of-range scores are handled. Default: ScoreReject.
func WithScorePolicy(sp ScorePolicy) Option {
	return func(p *Pipeline) { p.validator.Policy = sp }
}

// WithTimeout bounds each model call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}


// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline wires a Pipeline around gen and store.
func NewPipeline(gen Generator, store Store, opts ...Option) (*Pipeline, error) {
	if gen == nil {
		return nil, errors.New("feedback: generator must not be nil")
	}
	if store == nil {
		return nil, errors.New("feedback: store must not be nil")
	}
	p := &Pipeline{
		gen:       gen,
		store:     store,
		validator: Validator{Policy: ScoreReject},
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.rubric.Load() == nil {
		r := DefaultRubric()
		p.rubric.Store(&r)
	}
	if err := p.rubric.Load().Validate(); err != nil {
		return nil, err
	}
	if !p.validator.Policy.Valid() {
		return nil, fmt.Errorf("feedback: unknown score policy %q", p.validator.Policy)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Rubric returns the rubric currently used for new requests.
func (p *Pipeline) Rubric() Rubric {
	return *p.rubric.Load()
}

// SetRubric atomically replaces the rubric for subsequent requests.
// In-flight requests keep the rubric they started with.
func (p *Pipeline) SetRubric(r Rubric) error {
	if err := r.Validate(); err != nil {
		return err
	}
	p.rubric.Store(&r)
	return nil
}

// CreateFeedback scores req and persists the result. Every failure is
// reported in the returned Outcome; it never panics on bad model output.
func (p *Pipeline) CreateFeedback(ctx context.Context, req Request) Outcome {
	id, err := p.Create(ctx, req)
	if err != nil {
		return Outcome{Success: false, Error: err.Error(), Kind: ErrorKind(err)}
	}
	return Outcome{Success: true, FeedbackID: id}
}

// Create is the typed-error form of CreateFeedback. It returns the new record
// ID or one of: ErrInvalidRequest, *transcript.MalformedTranscriptError,
// *GenerationFailureError, *InvalidJSONError, *SchemaValidationError,
// *PersistenceError.
func (p *Pipeline) Create(ctx context.Context, req Request) (id string, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "feedback.create", trace.WithAttributes(
		attribute.String("classroom_id", req.ClassroomID),
		attribute.String("user_id", req.UserID),
	))
	defer func() {
		status := "ok"
		if err != nil {
			status = ErrorKind(err)
			observe.FailSpan(span, err, status)
		}
		span.End()
		p.metrics.RecordFeedback(ctx, status, time.Since(start).Seconds())
	}()

	log := observe.Logger(ctx).With("classroom_id", req.ClassroomID, "user_id", req.UserID)

	if strings.TrimSpace(req.ClassroomID) == "" || strings.TrimSpace(req.UserID) == "" {
		return "", fmt.Errorf("%w: classroomId and userId are required", ErrInvalidRequest)
	}

	t, stats, err := transcript.Normalize(req.Transcript)
	if err != nil {
		log.Warn("feedback: rejected transcript", "err", err)
		return "", err
	}

	rubric := p.rubric.Load()
	prompt := BuildPrompt(t, stats, *rubric)

	raw, err := p.generate(ctx, prompt)
	if err != nil {
		log.Error("feedback: generation failed", "err", err)
		return "", err
	}

	assessment, err := p.validator.Validate(raw)
	if err != nil {
		log.Warn("feedback: model reply rejected", "err", err, "reply", compactJSON(raw))
		return "", err
	}

	rec := Record{
		ClassroomID:   req.ClassroomID,
		UserID:        req.UserID,
		Assessment:    assessment,
		CreatedAt:     p.now().UTC(),
		SessionStats:  stats,
		RubricVersion: rubric.Version,
	}
	id, err = p.store.Put(ctx, rec)
	if err != nil {
		err = &PersistenceError{Err: err}
		log.Error("feedback: persist failed", "err", err)
		return "", err
	}

	log.Info("feedback: created",
		"feedback_id", id,
		"total_score", assessment.TotalScore,
		"learner_responses", stats.TotalResponses,
		"rubric", rubric.Version,
	)
	return id, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	ctx, span := observe.StartSpan(ctx, "feedback.generate")
	defer span.End()

	// Per-backend latency and errors are recorded by the provider chain,
	// which knows which backend answered.
	p.metrics.ActiveGenerations.Add(ctx, 1)
	raw, err := p.gen.Generate(ctx, prompt)
	p.metrics.ActiveGenerations.Add(ctx, -1)

	if err != nil {
		observe.FailSpan(span, err, "generation_failure")
		var genErr *GenerationFailureError
		if !errors.As(err, &genErr) {
			err = &GenerationFailureError{Err: err}
		}
		return "", err
	}
	return raw, nil
}

// GetFeedbackByClassroomID returns the feedback recorded for the
// (classroomID, userID) pair, or nil when there is none. When several records
// exist for the pair, the oldest is returned.
func (p *Pipeline) GetFeedbackByClassroomID(ctx context.Context, classroomID, userID string) (*Record, error) {
	if classroomID == "" || userID == "" {
		return nil, fmt.Errorf("%w: classroomId and userId are required", ErrInvalidRequest)
	}
	rec, err := p.store.FindOne(ctx, classroomID, userID)
	return found(rec, err)
}

// GetFeedback returns the feedback with the given ID, or nil when unknown.
func (p *Pipeline) GetFeedback(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	rec, err := p.store.Get(ctx, id)
	return found(rec, err)
}

// Ping reports whether the backing store is reachable.
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func found(rec Record, err error) (*Record, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
