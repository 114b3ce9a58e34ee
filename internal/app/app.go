// Package app wires the tutoring service subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates the stores, the model
// failover chain, the feedback pipeline, the classroom planner and the HTTP
// server; Run serves until the context is cancelled; Shutdown drains the
// server and releases storage in order.
//
// For testing, inject in-memory stores via functional options
// (WithFeedbackStore, WithClassroomStore). When an option is not provided,
// New creates the backend named by storage.backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SumitDutta007/ai-tutor/internal/api"
	"github.com/SumitDutta007/ai-tutor/internal/classroom"
	"github.com/SumitDutta007/ai-tutor/internal/config"
	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/internal/health"
	"github.com/SumitDutta007/ai-tutor/internal/observe"
	"github.com/SumitDutta007/ai-tutor/internal/resilience"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// defaultPlannerTemperature leaves the planner more room than the scorer.
const defaultPlannerTemperature = 0.7

// NamedLLM is a model backend together with the name it was configured under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the model backends built by main.go via the config registry.
// LLM is required; Fallbacks are tried in order when it fails or its circuit
// breaker is open.
type Providers struct {
	LLM       llm.Provider
	Fallbacks []NamedLLM
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	feedbackStore  feedback.Store
	classroomStore classroom.Store
	llm            *resilience.LLMFallback
	pipeline       *feedback.Pipeline
	classrooms     *classroom.Service
	api            *api.Server
	server         *http.Server

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFeedbackStore injects a feedback store instead of creating one from config.
func WithFeedbackStore(s feedback.Store) Option {
	return func(a *App) { a.feedbackStore = s }
}

// WithClassroomStore injects a classroom store instead of creating one from config.
func WithClassroomStore(s classroom.Store) Option {
	return func(a *App) { a.classroomStore = s }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets ApplyConfig change the log level of a running server.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Model failover chain ──────────────────────────────────────────
	a.initLLM()

	// ── 3. Feedback pipeline ─────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init feedback: %w", err)
	}

	// ── 4. Classroom planner ─────────────────────────────────────────────
	if err := a.initClassrooms(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init classrooms: %w", err)
	}

	// ── 5. HTTP server ───────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	slog.Info("app initialised",
		"storage", a.storageBackend(),
		"llm", cfg.Providers.LLM.Name,
		"llm_fallbacks", len(providers.Fallbacks),
		"rubric", a.pipeline.Rubric().Version,
	)
	return a, nil
}

func (a *App) storageBackend() config.StorageBackend {
	if a.cfg.Storage.Backend == "" {
		return config.StorageMemory
	}
	return a.cfg.Storage.Backend
}

// initStorage opens the configured backend for whichever stores were not
// injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.feedbackStore != nil && a.classroomStore != nil {
		return nil // both injected
	}

	switch a.storageBackend() {
	case config.StorageMemory:
		if a.feedbackStore == nil {
			a.feedbackStore = feedback.NewMemStore()
		}
		if a.classroomStore == nil {
			a.classroomStore = classroom.NewMemStore()
		}

	case config.StorageFile:
		dir := a.cfg.Storage.Dir
		if dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
		if a.feedbackStore == nil {
			s, err := feedback.NewFileStore(filepath.Join(dir, "feedback.jsonl"))
			if err != nil {
				return err
			}
			a.feedbackStore = s
		}
		if a.classroomStore == nil {
			s, err := classroom.NewFileStore(filepath.Join(dir, "classrooms.jsonl"))
			if err != nil {
				return err
			}
			a.classroomStore = s
		}

	case config.StoragePostgres:
		dsn := a.cfg.Storage.PostgresDSN
		if dsn == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if a.feedbackStore == nil {
			s := feedback.NewPostgresStore(pool)
			if err := s.Migrate(ctx); err != nil {
				return err
			}
			a.feedbackStore = s
		}
		if a.classroomStore == nil {
			s := classroom.NewPostgresStore(pool)
			if err := s.Migrate(ctx); err != nil {
				return err
			}
			a.classroomStore = s
		}

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

// initLLM puts the primary and every fallback behind per-backend circuit
// breakers. Calls and breaker transitions are counted per backend.
func (a *App) initLLM() {
	cfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
			},
		},
		OnAttempt: func(name string, elapsed time.Duration, err error) {
			a.metrics.RecordLLMCall(context.Background(), name, elapsed, err)
		},
	}
	a.llm = resilience.NewLLMFallback(a.providers.LLM, a.primaryName(), cfg)
	for _, fb := range a.providers.Fallbacks {
		if fb.Provider == nil {
			continue
		}
		a.llm.AddFallback(fb.Name, fb.Provider)
	}
}

func (a *App) primaryName() string {
	if n := a.cfg.Providers.LLM.Name; n != "" {
		return n
	}
	return "llm"
}

func (a *App) initPipeline() error {
	fc := a.cfg.Feedback

	var genOpts []feedback.GeneratorOption
	if fc.Temperature != nil {
		genOpts = append(genOpts, feedback.WithTemperature(*fc.Temperature))
	}
	if fc.MaxTokens > 0 {
		genOpts = append(genOpts, feedback.WithMaxTokens(fc.MaxTokens))
	}
	gen, err := feedback.NewLLMGenerator(a.llm, genOpts...)
	if err != nil {
		return err
	}

	opts := []feedback.Option{
		feedback.WithScorePolicy(fc.ScorePolicy),
		feedback.WithMetrics(a.metrics),
	}
	if fc.GenerationTimeout > 0 {
		opts = append(opts, feedback.WithTimeout(fc.GenerationTimeout))
	}
	if fc.Rubric != nil {
		opts = append(opts, feedback.WithRubric(*fc.Rubric))
	}

	a.pipeline, err = feedback.NewPipeline(gen, a.feedbackStore, opts...)
	return err
}

func (a *App) initClassrooms() error {
	temp := defaultPlannerTemperature
	if t := a.cfg.Classroom.Temperature; t != nil {
		temp = *t
	}
	planner, err := classroom.NewLLMPlanner(a.llm, temp)
	if err != nil {
		return err
	}
	a.classrooms, err = classroom.NewService(planner, a.classroomStore, classroom.WithMetrics(a.metrics))
	return err
}

// initServer builds the HTTP handler and server. Readiness requires both
// stores and at least one usable model backend; each backend is also
// reported on its own without failing the probe.
func (a *App) initServer() error {
	checkers := []health.Checker{
		health.Ping("feedback_store", a.feedbackStore),
		health.Ping("classroom_store", a.classroomStore),
		health.Available("llm", a.llm.Available, "every model backend has an open circuit breaker", false),
	}
	for name := range a.llm.States() {
		checkers = append(checkers, health.Available("llm:"+name, func() bool {
			return a.llm.States()[name] != resilience.StateOpen
		}, "circuit breaker open", true))
	}

	opts := []api.Option{
		api.WithHealth(health.New(checkers...)),
		api.WithMetrics(a.metrics),
	}
	if a.metricsHandler != nil {
		opts = append(opts, api.WithMetricsHandler(a.metricsHandler))
	}
	srv, err := api.New(a.pipeline, a.classrooms, opts...)
	if err != nil {
		return err
	}
	a.api = srv

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation may take up to feedback.generation_timeout.
		WriteTimeout: a.writeTimeout(),
		IdleTimeout:  2 * time.Minute,
	}
	return nil
}

func (a *App) writeTimeout() time.Duration {
	gen := a.cfg.Feedback.GenerationTimeout
	if gen <= 0 {
		gen = feedback.DefaultTimeout
	}
	return gen + 30*time.Second
}

// Handler returns the root HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler { return a.api }

// Pipeline returns the feedback pipeline.
func (a *App) Pipeline() *feedback.Pipeline { return a.pipeline }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
// When ctx is done, Run returns context.Canceled (or the underlying cause).
// Call Shutdown afterwards to drain in-flight requests.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like Run but accepts connections on ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()
	slog.Info("app running", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level and the rubric. Changes that need a restart are logged.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}

	if d.RubricChanged {
		r := feedback.DefaultRubric()
		if d.NewRubric != nil {
			r = *d.NewRubric
		}
		if err := a.pipeline.SetRubric(r); err != nil {
			slog.Error("config: rubric rejected, keeping previous", "err", err)
		} else {
			slog.Info("config: rubric updated", "version", r.Version)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after restart", "fields", d.RestartRequired)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones, then releases
// storage. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
