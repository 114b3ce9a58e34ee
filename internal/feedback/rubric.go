package feedback

import (
	"errors"
	"fmt"
	"slices"
)

// Rubric is the grading policy rendered into every scoring prompt. It is
// plain configuration: operators can version it and hot-reload it without
// touching pipeline code. Category names are fixed; only the criteria text
// under each name may change.
type Rubric struct {
	// Version is recorded on every Record scored with this rubric.
	Version string `yaml:"version" json:"version"`

	// Preamble sets the grader persona and strictness.
	Preamble []string `yaml:"preamble" json:"preamble"`

	// Guidelines are global scoring rules (score ceilings tied to engagement).
	Guidelines []string `yaml:"guidelines" json:"guidelines"`

	// Overall describes how to form the total score.
	Overall []string `yaml:"overall" json:"overall"`

	// Categories holds the per-category criteria in the fixed order.
	Categories []RubricCategory `yaml:"categories" json:"categories"`

	// Strengths and Improvements steer the two free-text lists.
	Strengths    []string `yaml:"strengths" json:"strengths"`
	Improvements []string `yaml:"improvements" json:"improvements"`
}

// RubricCategory holds the criteria for one scoring category.
type RubricCategory struct {
	Name     string   `yaml:"name" json:"name"`
	Criteria []string `yaml:"criteria" json:"criteria"`
}

// DefaultRubric returns the built-in strict rubric. Low engagement caps the
// achievable scores and high scores require cited evidence.
func DefaultRubric() Rubric {
	return Rubric{
		Version: "strict-v1",
		Preamble: []string{
			"You are an AI teacher analyzing a mock classroom session. Your task is to provide detailed, constructive feedback on the student's performance.",
			"Be extremely critical and accurate in your assessment. The scoring should reflect the actual performance, not be lenient.",
		},
		Guidelines: []string{
			"For sessions with minimal interaction (less than 3 exchanges), scores should be very low (0-20)",
			"For short or incomplete sessions, maximum score should be 40",
			"Scores above 70 should only be given for exceptional performance with clear evidence",
			"Each score must be justified with specific examples from the transcript",
			"If a student leaves early or shows minimal engagement, this should be heavily reflected in the scores",
			"Default to lower scores when in doubt - scores must be earned, not given",
		},
		Overall: []string{
			"Start with engagement level (minimal/moderate/high)",
			"Note if session was completed or terminated early",
			"Give a total score out of 100 based on actual performance, not potential",
		},
		Categories: []RubricCategory{
			{Name: CategoryCommunication, Criteria: []string{
				"Quantity of responses (fewer responses = lower score)",
				"Quality of responses (depth, clarity, relevance)",
				"Engagement level (minimal responses = max 20 points)",
				"Must cite specific examples for any score above 50",
			}},
			{Name: CategoryTechnical, Criteria: []string{
				"Accuracy of responses",
				"Depth of understanding shown",
				"Use of technical terms",
				"No demonstrated knowledge = score of 0",
				"Basic responses = max score of 40",
				"Detailed, accurate responses needed for scores above 60",
			}},
			{Name: CategoryProblemSolve, Criteria: []string{
				"Approach to challenges",
				"Depth of analysis",
				"Solution quality",
				"No problem solving shown = score of 0",
				"Simple solutions = max score of 30",
				"Creative, effective solutions needed for scores above 50",
			}},
			{Name: CategoryConfidence, Criteria: []string{
				"Response consistency",
				"Self-expression quality",
				"Minimal participation = max score of 10",
				"Basic participation = max score of 40",
				"Scores above 60 require clear examples of confident, articulate responses",
			}},
		},
		Strengths: []string{
			"Only list strengths that are clearly demonstrated",
			"Each strength must have a specific example",
			`If minimal participation, state "No clear strengths demonstrated"`,
		},
		Improvements: []string{
			"List specific, actionable improvements",
			"Focus on participation if engagement was low",
			"Suggest specific strategies for each area",
		},
	}
}

// Validate reports every problem with r.
func (r Rubric) Validate() error {
	var errs []error
	if r.Version == "" {
		errs = append(errs, errors.New("rubric: version is required"))
	}
	names := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		names[i] = c.Name
		if len(c.Criteria) == 0 {
			errs = append(errs, fmt.Errorf("rubric: categories[%d] (%s): at least one criterion is required", i, c.Name))
		}
	}
	if !slices.Equal(names, Categories()) {
		errs = append(errs, fmt.Errorf("rubric: categories must be exactly %q in order, got %q", Categories(), names))
	}
	return errors.Join(errs...)
}

// Equal reports whether r and o render the same prompt.
func (r Rubric) Equal(o Rubric) bool {
	if r.Version != o.Version ||
		!slices.Equal(r.Preamble, o.Preamble) ||
		!slices.Equal(r.Guidelines, o.Guidelines) ||
		!slices.Equal(r.Overall, o.Overall) ||
		!slices.Equal(r.Strengths, o.Strengths) ||
		!slices.Equal(r.Improvements, o.Improvements) ||
		len(r.Categories) != len(o.Categories) {
		return false
	}
	for i := range r.Categories {
		if r.Categories[i].Name != o.Categories[i].Name ||
			!slices.Equal(r.Categories[i].Criteria, o.Categories[i].Criteria) {
			return false
		}
	}
	return true
}
