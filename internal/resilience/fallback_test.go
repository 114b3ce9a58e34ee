package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// modelChain builds a group of named backends whose breakers open after
// maxFailures and stay open for the rest of the test.
func modelChain(maxFailures int, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

// failing returns a call that errors for the listed backends and answers
// with the backend's name otherwise, recording every attempt.
func failing(tried *[]string, down ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		*tried = append(*tried, name)
		if slices.Contains(down, name) {
			return "", errTest
		}
		return "reply from " + name, nil
	}
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		down      []string
		want      string
		wantTried []string
		wantErr   bool
	}{
		{
			name:      "primary answers",
			want:      "reply from gemini",
			wantTried: []string{"gemini"},
		},
		{
			name:      "primary down",
			down:      []string{"gemini"},
			want:      "reply from openai",
			wantTried: []string{"gemini", "openai"},
		},
		{
			name:      "first two down",
			down:      []string{"gemini", "openai"},
			want:      "reply from ollama",
			wantTried: []string{"gemini", "openai", "ollama"},
		},
		{
			name:      "everything down",
			down:      []string{"gemini", "openai", "ollama"},
			wantTried: []string{"gemini", "openai", "ollama"},
			wantErr:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var tried []string
			got, err := ExecuteWithResult(modelChain(3, "gemini", "openai", "ollama"), failing(&tried, tc.down...))
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping the last error", err)
				}
			} else if err != nil || got != tc.want {
				t.Fatalf("got %q, %v; want %q", got, err, tc.want)
			}
			if !slices.Equal(tried, tc.wantTried) {
				t.Errorf("tried %v, want %v", tried, tc.wantTried)
			}
		})
	}
}

func TestExecuteWithResult_StopsOnContextError(t *testing.T) {
	t.Parallel()

	for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
		var tried []string
		_, err := ExecuteWithResult(modelChain(3, "gemini", "openai"), func(name string) (string, error) {
			tried = append(tried, name)
			return "", ctxErr
		})
		if !errors.Is(err, ctxErr) || errors.Is(err, ErrAllFailed) {
			t.Errorf("err = %v, want bare %v", err, ctxErr)
		}
		if !slices.Equal(tried, []string{"gemini"}) {
			t.Errorf("tried %v after %v, want only the primary", tried, ctxErr)
		}
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := modelChain(2, "gemini", "openai")
	var tried []string
	for range 2 {
		_, _ = ExecuteWithResult(fg, failing(&tried, "gemini"))
	}

	tried = nil
	var served string
	if err := fg.Execute(func(name string) error {
		tried = append(tried, name)
		served = name
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "openai" || len(tried) != 1 {
		t.Errorf("served by %q after trying %v, want openai only", served, tried)
	}
}

func TestFallbackGroup_StatesAndAvailable(t *testing.T) {
	t.Parallel()

	fg := modelChain(1, "gemini", "openai")
	if fg.Primary() != "gemini" {
		t.Errorf("Primary = %q", fg.Primary())
	}

	var tried []string
	_, _ = ExecuteWithResult(fg, failing(&tried, "gemini"))
	states := fg.States()
	if states["gemini"] != StateOpen || states["openai"] != StateClosed {
		t.Errorf("States = %v", states)
	}
	if !fg.Available() {
		t.Error("Available = false with a closed fallback")
	}

	_ = fg.Execute(func(string) error { return errTest })
	if fg.Available() {
		t.Error("Available = true with every breaker open")
	}
}

func TestFallbackGroup_OnAttemptReportsServedEntries(t *testing.T) {
	t.Parallel()

	type attempt struct {
		name string
		ok   bool
	}
	var got []attempt
	fg := NewFallbackGroup("gemini", "gemini", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		OnAttempt: func(name string, elapsed time.Duration, err error) {
			if elapsed < 0 {
				t.Errorf("negative elapsed for %s", name)
			}
			got = append(got, attempt{name, err == nil})
		},
	})
	fg.AddFallback("openai", "openai")

	var tried []string
	for range 2 {
		if _, err := ExecuteWithResult(fg, failing(&tried, "gemini")); err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
	}

	// The second call skips gemini's open breaker and is not reported for it.
	want := []attempt{{"gemini", false}, {"openai", true}, {"openai", true}}
	if !slices.Equal(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}
}
