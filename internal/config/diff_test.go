package config_test

import (
	"slices"
	"testing"

	"github.com/SumitDutta007/ai-tutor/internal/config"
	"github.com/SumitDutta007/ai-tutor/internal/feedback"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	r := feedback.DefaultRubric()
	cfg := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Feedback: config.FeedbackConfig{Rubric: &r},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.RubricChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_Rubric(t *testing.T) {
	t.Parallel()

	a := feedback.DefaultRubric()
	b := feedback.DefaultRubric()
	b.Categories[2].Criteria = append(b.Categories[2].Criteria, "Checks units")

	tests := []struct {
		name     string
		old, new *feedback.Rubric
		changed  bool
		wantNil  bool
	}{
		{"both default", nil, nil, false, false},
		{"equal copies", &a, ptr(feedback.DefaultRubric()), false, false},
		{"added", nil, &a, true, false},
		{"removed", &a, nil, true, true},
		{"criteria edited", &a, &b, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := config.Diff(
				&config.Config{Feedback: config.FeedbackConfig{Rubric: tt.old}},
				&config.Config{Feedback: config.FeedbackConfig{Rubric: tt.new}},
			)
			if d.RubricChanged != tt.changed {
				t.Errorf("RubricChanged: got %v, want %v", d.RubricChanged, tt.changed)
			}
			if tt.changed && (d.NewRubric == nil) != tt.wantNil {
				t.Errorf("NewRubric nil: got %v, want %v", d.NewRubric == nil, tt.wantNil)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "gemini", Model: "gemini-1.5-flash"}},
		Storage:   config.StorageConfig{Backend: config.StorageMemory},
	}
	new := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":9090", TraceSampleRatio: 0.1},
		Providers: config.ProvidersConfig{
			LLM:          config.ProviderEntry{Name: "gemini", Model: "gemini-1.5-flash"},
			LLMFallbacks: []config.ProviderEntry{{Name: "openai"}},
		},
		Storage: config.StorageConfig{Backend: config.StorageFile, Dir: "/var/lib/tutor"},
	}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "server.trace_sample_ratio", "providers", "storage"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.RubricChanged {
		t.Error("hot-reloadable fields reported as changed")
	}
}

func ptr[T any](v T) *T { return &v }
