// Package api exposes the feedback pipeline and classroom planner over HTTP.
//
// Routes use the method-and-pattern syntax of [http.ServeMux]:
//
//	POST /api/feedback                           score a transcript
//	GET  /api/feedback?classroomId=&userId=      look up a score
//	GET  /api/feedback/{id}                      fetch a score by ID
//	POST /api/classrooms                         plan a classroom from notes
//	GET  /api/classrooms?userId=                 list a user's classrooms
//	GET  /api/classrooms/{id}                    fetch a classroom
//	GET  /healthz, /readyz, /metrics             probes and scrape endpoint
//
// POST /api/feedback accepts either a JSON body or a form submission whose
// transcript field holds the serialized utterance array. It always replies
// with the {success, feedbackId | error} outcome.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/SumitDutta007/ai-tutor/internal/classroom"
	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/internal/health"
	"github.com/SumitDutta007/ai-tutor/internal/observe"
	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

// maxBodyBytes caps request bodies. Transcripts of long sessions and pasted
// notes stay well below this.
const maxBodyBytes = 4 << 20

// FeedbackService is the part of [feedback.Pipeline] served over HTTP.
type FeedbackService interface {
	CreateFeedback(ctx context.Context, req feedback.Request) feedback.Outcome
	GetFeedbackByClassroomID(ctx context.Context, classroomID, userID string) (*feedback.Record, error)
	GetFeedback(ctx context.Context, id string) (*feedback.Record, error)
}

// ClassroomService is the part of [classroom.Service] served over HTTP.
type ClassroomService interface {
	Create(ctx context.Context, req classroom.CreateRequest) (classroom.Classroom, error)
	Get(ctx context.Context, id string) (classroom.Classroom, error)
	ListByUser(ctx context.Context, userID string) ([]classroom.Classroom, error)
}

var (
	_ FeedbackService  = (*feedback.Pipeline)(nil)
	_ ClassroomService = (*classroom.Service)(nil)
)

// Server routes HTTP requests to the services.
type Server struct {
	feedback   FeedbackService
	classrooms ClassroomService
	health     *health.Handler
	metricsH   http.Handler
	metrics    *observe.Metrics
	validate   *requestValidator
	mux        *http.ServeMux
	handler    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithHealth mounts /healthz and /readyz served by h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.HandlerFor.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsH = h }
}

// WithMetrics sets the metrics used by the request middleware.
// Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds a Server. Both services are required.
func New(fb FeedbackService, cr ClassroomService, opts ...Option) (*Server, error) {
	if fb == nil {
		return nil, errors.New("api: feedback service must not be nil")
	}
	if cr == nil {
		return nil, errors.New("api: classroom service must not be nil")
	}
	s := &Server{
		feedback:   fb,
		classrooms: cr,
		validate:   newRequestValidator(),
		mux:        http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mux.HandleFunc("POST /api/feedback", s.createFeedback)
	s.mux.HandleFunc("GET /api/feedback", s.findFeedback)
	s.mux.HandleFunc("GET /api/feedback/{id}", s.getFeedback)
	s.mux.HandleFunc("POST /api/classrooms", s.createClassroom)
	s.mux.HandleFunc("GET /api/classrooms", s.listClassrooms)
	s.mux.HandleFunc("GET /api/classrooms/{id}", s.getClassroom)
	if s.health != nil {
		s.health.Register(s.mux)
	}
	if s.metricsH != nil {
		s.mux.Handle("GET /metrics", s.metricsH)
	}

	s.handler = observe.Middleware(s.metrics)(s.mux)
	return s, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ── Feedback ─────────────────────────────────────────────────────────────────

// feedbackBody is the create-feedback request as sent by clients.
type feedbackBody struct {
	ClassroomID string           `json:"classroomId" validate:"required,notblank"`
	UserID      string           `json:"userId" validate:"required,notblank"`
	Transcript  transcript.Input `json:"transcript" validate:"required"`
}

func (s *Server) createFeedback(w http.ResponseWriter, r *http.Request) {
	body, err := s.decodeFeedback(w, r)
	if err == nil {
		err = s.validate.Struct(body)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, feedback.Outcome{
			Success: false,
			Error:   "invalid request: " + err.Error(),
			Kind:    feedback.KindInvalidRequest,
		})
		return
	}

	out := s.feedback.CreateFeedback(r.Context(), feedback.Request{
		ClassroomID: body.ClassroomID,
		UserID:      body.UserID,
		Transcript:  body.Transcript,
	})
	writeJSON(w, outcomeStatus(out), out)
}

// decodeFeedback reads a JSON body, or form fields for any other content type.
func (s *Server) decodeFeedback(w http.ResponseWriter, r *http.Request) (feedbackBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body feedbackBody
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return body, errors.New("empty body")
			}
			return body, err
		}
		return body, nil
	}

	body.ClassroomID = r.FormValue("classroomId")
	body.UserID = r.FormValue("userId")
	if v, ok := formField(r, "transcript"); ok {
		body.Transcript = transcript.FromJSON(v)
	}
	return body, nil
}

// outcomeStatus maps a pipeline outcome to an HTTP status: caller mistakes
// are 400, model failures 502 and storage failures 500.
func outcomeStatus(out feedback.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.Kind {
	case feedback.KindInvalidRequest, feedback.KindMalformedTranscript:
		return http.StatusBadRequest
	case feedback.KindGenerationFailure, feedback.KindInvalidJSON, feedback.KindSchemaValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) findFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	classroomID, userID := q.Get("classroomId"), q.Get("userId")
	if classroomID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "classroomId and userId are required")
		return
	}
	rec, err := s.feedback.GetFeedbackByClassroomID(r.Context(), classroomID, userID)
	s.writeRecord(w, r, rec, err)
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	rec, err := s.feedback.GetFeedback(r.Context(), r.PathValue("id"))
	s.writeRecord(w, r, rec, err)
}

func (s *Server) writeRecord(w http.ResponseWriter, r *http.Request, rec *feedback.Record, err error) {
	switch {
	case errors.Is(err, feedback.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		observe.Logger(r.Context()).Error("api: feedback lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
	case rec == nil:
		writeError(w, http.StatusNotFound, "Feedback not found")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// ── Classrooms ───────────────────────────────────────────────────────────────

func (s *Server) createClassroom(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req classroom.CreateRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	} else {
		req = classroom.CreateRequest{
			UserID:   r.FormValue("userId"),
			Notes:    r.FormValue("content"),
			Type:     classroom.SessionType(r.FormValue("type")),
			Standard: r.FormValue("standard"),
		}
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}

	c, err := s.classrooms.Create(r.Context(), req)
	var planErr *classroom.PlanError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, c)
	case errors.Is(err, classroom.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &planErr):
		writeError(w, http.StatusBadGateway, "could not plan classroom: "+planErr.Err.Error())
	default:
		observe.Logger(r.Context()).Error("api: create classroom failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save classroom")
	}
}

func (s *Server) listClassrooms(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	list, err := s.classrooms.ListByUser(r.Context(), userID)
	if err != nil {
		observe.Logger(r.Context()).Error("api: list classrooms failed", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list classrooms")
		return
	}
	if list == nil {
		list = []classroom.Classroom{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getClassroom(w http.ResponseWriter, r *http.Request) {
	c, err := s.classrooms.Get(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, c)
	case errors.Is(err, classroom.ErrNotFound):
		writeError(w, http.StatusNotFound, "Classroom not found")
	case errors.Is(err, classroom.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		observe.Logger(r.Context()).Error("api: get classroom failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load classroom")
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeValidation(w http.ResponseWriter, err error) {
	var fe *FieldErrors
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Fields: fe.Fields})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: write response", "err", err)
	}
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// formField reports whether the form carries key at all, so an explicitly
// empty transcript reaches the normaliser instead of reading as missing.
func formField(r *http.Request, key string) (string, bool) {
	if r.Form == nil {
		_ = r.ParseMultipartForm(maxBodyBytes)
	}
	vs, ok := r.Form[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
