package feedback_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/internal/observe"
	"github.com/SumitDutta007/ai-tutor/internal/transcript"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm/mock"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// spyStore counts Put calls and can inject failures.
type spyStore struct {
	*feedback.MemStore
	puts   atomic.Int32
	putErr error
}

func (s *spyStore) Put(ctx context.Context, rec feedback.Record) (string, error) {
	s.puts.Add(1)
	if s.putErr != nil {
		return "", s.putErr
	}
	return s.MemStore.Put(ctx, rec)
}

func noopMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type fixture struct {
	provider *mock.Provider
	store    *spyStore
	pipeline *feedback.Pipeline
}

func newFixture(t *testing.T, reply string, opts ...feedback.Option) *fixture {
	t.Helper()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}
	gen, err := feedback.NewLLMGenerator(p)
	if err != nil {
		t.Fatalf("NewLLMGenerator: %v", err)
	}
	store := &spyStore{MemStore: feedback.NewMemStore()}
	opts = append([]feedback.Option{
		feedback.WithMetrics(noopMetrics(t)),
		feedback.WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	pl, err := feedback.NewPipeline(gen, store, opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return &fixture{provider: p, store: store, pipeline: pl}
}

func helloRequest() feedback.Request {
	return feedback.Request{
		ClassroomID: "c1",
		UserID:      "u1",
		Transcript:  transcript.FromJSON(`[{"role":"user","content":"Hello"}]`),
	}
}

func TestCreateFeedback_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, encode(t, validReply()))
	ctx := context.Background()

	out := f.pipeline.CreateFeedback(ctx, helloRequest())
	if !out.Success || out.FeedbackID == "" || out.Error != "" {
		t.Fatalf("CreateFeedback: unexpected outcome %+v", out)
	}

	// The prompt embeds the statistics verbatim.
	calls := f.provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls: got %d, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	for _, want := range []string{"Total student responses: 1", "Average response length: 5 characters", "- user: Hello"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	rec, err := f.pipeline.GetFeedback(ctx, out.FeedbackID)
	if err != nil || rec == nil {
		t.Fatalf("GetFeedback: rec=%v err=%v", rec, err)
	}
	if rec.ClassroomID != "c1" || rec.UserID != "u1" {
		t.Errorf("identity: %q/%q", rec.ClassroomID, rec.UserID)
	}
	if rec.SessionStats != (transcript.Stats{TotalResponses: 1, AvgResponseLength: 5}) {
		t.Errorf("SessionStats: got %+v", rec.SessionStats)
	}
	if !rec.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt: got %v, want %v", rec.CreatedAt, fixedNow)
	}
	if rec.RubricVersion != feedback.DefaultRubric().Version {
		t.Errorf("RubricVersion: got %q", rec.RubricVersion)
	}
	if strings.Contains(rec.CategoryScores[0].Comment, "**") {
		t.Errorf("stored comment not sanitised: %q", rec.CategoryScores[0].Comment)
	}
}

func TestCreateFeedback_FencedReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "```json\n"+encode(t, validReply())+"\n```")
	out := f.pipeline.CreateFeedback(context.Background(), helloRequest())
	if !out.Success {
		t.Fatalf("fenced reply rejected: %+v", out)
	}
}

func TestCreateFeedback_Failures(t *testing.T) {
	t.Parallel()

	threeCats := validReply()
	threeCats["categoryScores"] = threeCats["categoryScores"].([]any)[:3]

	tests := []struct {
		name      string
		reply     string
		req       feedback.Request
		wantKind  string
		wantCalls int
	}{
		{"schema violation", encode(t, threeCats), helloRequest(), feedback.KindSchemaValidation, 1},
		{"prose reply", "Sorry, I can't help with that.", helloRequest(), feedback.KindInvalidJSON, 1},
		{"malformed transcript", encode(t, validReply()), feedback.Request{
			ClassroomID: "c1", UserID: "u1", Transcript: transcript.FromJSON("{oops"),
		}, feedback.KindMalformedTranscript, 0},
		{"missing user", encode(t, validReply()), feedback.Request{
			ClassroomID: "c1", Transcript: transcript.FromJSON("[]"),
		}, feedback.KindInvalidRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.reply)
			out := f.pipeline.CreateFeedback(context.Background(), tt.req)
			if out.Success || out.Error == "" || out.FeedbackID != "" {
				t.Fatalf("expected failure outcome, got %+v", out)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind: got %q, want %q (error %q)", out.Kind, tt.wantKind, out.Error)
			}
			if got := len(f.provider.Calls()); got != tt.wantCalls {
				t.Errorf("Complete calls: got %d, want %d", got, tt.wantCalls)
			}
			if f.store.puts.Load() != 0 {
				t.Error("store was written on a failed request")
			}
		})
	}
}

func TestCreateFeedback_GenerationError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.provider.CompleteResponse = nil
	f.provider.CompleteErr = errors.New("401 missing API key")

	_, err := f.pipeline.Create(context.Background(), helloRequest())
	var genErr *feedback.GenerationFailureError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationFailureError, got %v", err)
	}
	if f.store.puts.Load() != 0 {
		t.Error("store was written after a generation failure")
	}
}

func TestCreateFeedback_Timeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "", feedback.WithTimeout(20*time.Millisecond))
	f.provider.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	out := f.pipeline.CreateFeedback(context.Background(), helloRequest())
	if out.Success || out.Kind != feedback.KindGenerationFailure {
		t.Fatalf("expected generation failure on timeout, got %+v", out)
	}
}

func TestCreateFeedback_PersistenceError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, encode(t, validReply()))
	f.store.putErr = errors.New("disk full")

	_, err := f.pipeline.Create(context.Background(), helloRequest())
	var storeErr *feedback.PersistenceError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if feedback.ErrorKind(err) != feedback.KindPersistence {
		t.Errorf("ErrorKind: got %q", feedback.ErrorKind(err))
	}
}

func TestCreateFeedback_DuplicateRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t, encode(t, validReply()))
	ctx := context.Background()

	var wg sync.WaitGroup
	outs := make([]feedback.Outcome, 2)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = f.pipeline.CreateFeedback(ctx, helloRequest())
		}()
	}
	wg.Wait()

	if !outs[0].Success || !outs[1].Success {
		t.Fatalf("outcomes: %+v", outs)
	}
	if outs[0].FeedbackID == outs[1].FeedbackID {
		t.Fatal("duplicate requests produced the same id")
	}
	for _, o := range outs {
		if rec, err := f.pipeline.GetFeedback(ctx, o.FeedbackID); err != nil || rec == nil {
			t.Errorf("GetFeedback(%q): rec=%v err=%v", o.FeedbackID, rec, err)
		}
	}

	rec, err := f.pipeline.GetFeedbackByClassroomID(ctx, "c1", "u1")
	if err != nil || rec == nil {
		t.Fatalf("GetFeedbackByClassroomID: rec=%v err=%v", rec, err)
	}
	if rec.ID != outs[0].FeedbackID && rec.ID != outs[1].FeedbackID {
		t.Errorf("lookup returned unknown id %q", rec.ID)
	}
}

func TestGetFeedbackByClassroomID_Absent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, encode(t, validReply()))
	rec, err := f.pipeline.GetFeedbackByClassroomID(context.Background(), "nobody", "none")
	if err != nil || rec != nil {
		t.Fatalf("expected nil, nil; got %v, %v", rec, err)
	}
	if _, err := f.pipeline.GetFeedbackByClassroomID(context.Background(), "", "u"); !errors.Is(err, feedback.ErrInvalidRequest) {
		t.Errorf("empty classroom id: expected ErrInvalidRequest, got %v", err)
	}
}

func TestPipeline_SetRubric(t *testing.T) {
	t.Parallel()

	f := newFixture(t, encode(t, validReply()))

	bad := feedback.DefaultRubric()
	bad.Categories = bad.Categories[:2]
	if err := f.pipeline.SetRubric(bad); err == nil {
		t.Fatal("SetRubric accepted an invalid rubric")
	}

	r := feedback.DefaultRubric()
	r.Version = "geometry-v3"
	r.Categories[1].Criteria = []string{"Names the theorem used"}
	if err := f.pipeline.SetRubric(r); err != nil {
		t.Fatalf("SetRubric: %v", err)
	}
	if f.pipeline.Rubric().Version != "geometry-v3" {
		t.Errorf("Rubric(): got %q", f.pipeline.Rubric().Version)
	}

	out := f.pipeline.CreateFeedback(context.Background(), helloRequest())
	if !out.Success {
		t.Fatalf("CreateFeedback: %+v", out)
	}
	if !strings.Contains(f.provider.Calls()[0].Req.Messages[0].Content, "Names the theorem used") {
		t.Error("prompt not rendered from the new rubric")
	}
	rec, _ := f.pipeline.GetFeedback(context.Background(), out.FeedbackID)
	if rec.RubricVersion != "geometry-v3" {
		t.Errorf("RubricVersion: got %q", rec.RubricVersion)
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	gen, _ := feedback.NewLLMGenerator(&mock.Provider{})
	store := feedback.NewMemStore()

	if _, err := feedback.NewPipeline(nil, store); err == nil {
		t.Error("expected error for nil generator")
	}
	if _, err := feedback.NewPipeline(gen, nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := feedback.NewPipeline(gen, store, feedback.WithScorePolicy("round")); err == nil {
		t.Error("expected error for unknown score policy")
	}
	bad := feedback.DefaultRubric()
	bad.Version = ""
	if _, err := feedback.NewPipeline(gen, store, feedback.WithRubric(bad)); err == nil {
		t.Error("expected error for invalid rubric")
	}
}

func TestCreateFeedback_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t, "not json", feedback.WithMetrics(m))
	_ = f.pipeline.CreateFeedback(context.Background(), helloRequest())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "tutor.feedback.results" {
				continue
			}
			sum := met.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == feedback.KindInvalidJSON {
					found = dp.Value == 1
				}
			}
		}
	}
	if !found {
		t.Error("invalid_json outcome not recorded")
	}
}
