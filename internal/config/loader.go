package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${NAME} references are replaced with the value of environment variable
// NAME before decoding; unset variables expand to the empty string.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; feedback and classroom planning will be unavailable")
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
		}
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Feedback
	if cfg.Feedback.GenerationTimeout < 0 {
		errs = append(errs, fmt.Errorf("feedback.generation_timeout %s must not be negative", cfg.Feedback.GenerationTimeout))
	}
	if t := cfg.Feedback.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("feedback.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Feedback.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("feedback.max_tokens %d must not be negative", cfg.Feedback.MaxTokens))
	}
	if cfg.Feedback.ScorePolicy != "" && !cfg.Feedback.ScorePolicy.Valid() {
		errs = append(errs, fmt.Errorf("feedback.score_policy %q is invalid; valid values: reject, clamp, passthrough", cfg.Feedback.ScorePolicy))
	}
	if cfg.Feedback.Rubric != nil {
		if err := cfg.Feedback.Rubric.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feedback.rubric: %w", err))
		}
	}

	// Classroom
	if t := cfg.Classroom.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("classroom.temperature %.2f is out of range [0, 2]", *t))
	}

	// Storage
	switch cfg.Storage.Backend {
	case "", StorageMemory:
	case StorageFile:
		if cfg.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required when backend is file"))
		}
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required when backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, postgres", cfg.Storage.Backend))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, possibly a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
