package feedback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ScorePolicy decides what happens to scores outside 0..100.
type ScorePolicy string

const (
	// ScoreReject fails validation on any out-of-range score.
	ScoreReject ScorePolicy = "reject"

	// ScoreClamp pins out-of-range scores to the nearest bound.
	ScoreClamp ScorePolicy = "clamp"

	// ScorePassthrough stores scores as returned.
	ScorePassthrough ScorePolicy = "passthrough"
)

// Valid reports whether p is a known policy. The empty policy means ScoreReject.
func (p ScorePolicy) Valid() bool {
	switch p {
	case "", ScoreReject, ScoreClamp, ScorePassthrough:
		return true
	}
	return false
}

const (
	minScore = 0
	maxScore = 100
)

// Validator turns a raw model reply into a sanitised Assessment.
type Validator struct {
	Policy ScorePolicy
}

// Validate strips any code fence, parses raw as JSON, checks the assessment
// shape and sanitises every free-text field. It never panics on bad input.
func (v Validator) Validate(raw string) (Assessment, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return Assessment{}, &InvalidJSONError{Err: fmt.Errorf("empty reply")}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Assessment{}, &InvalidJSONError{Err: err}
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return Assessment{}, &InvalidJSONError{Err: errors.New("trailing data after JSON value")}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Assessment{}, &SchemaValidationError{Reason: "expected a JSON object"}
	}

	var (
		a   Assessment
		err error
	)
	if a.TotalScore, err = number(obj, "totalScore"); err != nil {
		return Assessment{}, err
	}
	if a.CategoryScores, err = categoryScores(obj["categoryScores"]); err != nil {
		return Assessment{}, err
	}
	if a.Strengths, err = stringList(obj, "strengths"); err != nil {
		return Assessment{}, err
	}
	if a.AreasForImprovement, err = stringList(obj, "areasForImprovement"); err != nil {
		return Assessment{}, err
	}
	if a.FinalAssessment, err = str(obj, "finalAssessment", "finalAssessment"); err != nil {
		return Assessment{}, err
	}

	if err := v.applyScorePolicy(&a); err != nil {
		return Assessment{}, err
	}
	sanitize(&a)
	return a, nil
}

func (v Validator) applyScorePolicy(a *Assessment) error {
	switch v.Policy {
	case ScorePassthrough:
		return nil
	case ScoreClamp:
		a.TotalScore = clamp(a.TotalScore)
		for i := range a.CategoryScores {
			a.CategoryScores[i].Score = clamp(a.CategoryScores[i].Score)
		}
		return nil
	default:
		if outOfRange(a.TotalScore) {
			return &SchemaValidationError{Field: "totalScore", Reason: fmt.Sprintf("score %v outside %d..%d", a.TotalScore, minScore, maxScore)}
		}
		for i, c := range a.CategoryScores {
			if outOfRange(c.Score) {
				return &SchemaValidationError{
					Field:  fmt.Sprintf("categoryScores[%d].score", i),
					Reason: fmt.Sprintf("score %v outside %d..%d", c.Score, minScore, maxScore),
				}
			}
		}
		return nil
	}
}

func outOfRange(s float64) bool { return s < minScore || s > maxScore }

func clamp(s float64) float64 {
	return min(max(s, minScore), maxScore)
}

func sanitize(a *Assessment) {
	a.FinalAssessment = CleanMarkdown(a.FinalAssessment)
	for i := range a.CategoryScores {
		a.CategoryScores[i].Comment = CleanMarkdown(a.CategoryScores[i].Comment)
	}
	for i := range a.Strengths {
		a.Strengths[i] = CleanMarkdown(a.Strengths[i])
	}
	for i := range a.AreasForImprovement {
		a.AreasForImprovement[i] = CleanMarkdown(a.AreasForImprovement[i])
	}
}

// ── shape helpers ────────────────────────────────────────────────────────────

func categoryScores(v any) ([]CategoryScore, error) {
	const field = "categoryScores"
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaValidationError{Field: field, Reason: "expected an array"}
	}
	want := Categories()
	if len(items) != len(want) {
		return nil, &SchemaValidationError{Field: field, Reason: fmt.Sprintf("expected exactly %d entries, got %d", len(want), len(items))}
	}

	out := make([]CategoryScore, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", field, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &SchemaValidationError{Field: path, Reason: "expected an object"}
		}
		name, err := str(obj, "name", path+".name")
		if err != nil {
			return nil, err
		}
		if name != want[i] {
			return nil, &SchemaValidationError{Field: path + ".name", Reason: fmt.Sprintf("expected %q, got %q", want[i], name)}
		}
		score, err := numberAt(obj, "score", path+".score")
		if err != nil {
			return nil, err
		}
		comment, err := str(obj, "comment", path+".comment")
		if err != nil {
			return nil, err
		}
		out[i] = CategoryScore{Name: name, Score: score, Comment: comment}
	}
	return out, nil
}

func number(obj map[string]any, key string) (float64, error) {
	return numberAt(obj, key, key)
}

func numberAt(obj map[string]any, key, path string) (float64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, &SchemaValidationError{Field: path, Reason: "missing"}
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, &SchemaValidationError{Field: path, Reason: "expected a number"}
	}
	f, err := n.Float64()
	if err != nil {
		return 0, &SchemaValidationError{Field: path, Reason: "number out of range"}
	}
	return f, nil
}

func str(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", &SchemaValidationError{Field: path, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &SchemaValidationError{Field: path, Reason: "expected a string"}
	}
	return s, nil
}

func stringList(obj map[string]any, key string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, &SchemaValidationError{Field: key, Reason: "missing"}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaValidationError{Field: key, Reason: "expected an array of strings"}
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &SchemaValidationError{Field: fmt.Sprintf("%s[%d]", key, i), Reason: "expected a string"}
		}
		out[i] = s
	}
	return out, nil
}

// compactJSON is used in logs to keep raw replies on one line.
func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(StripCodeFence(raw))); err != nil {
		return raw
	}
	return buf.String()
}
