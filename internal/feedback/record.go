// Package feedback scores a finished tutoring session. A Pipeline normalises
// the transcript, renders the grading prompt from a Rubric, asks a Generator
// for a JSON assessment, validates and sanitises the reply, and persists the
// result in a Store.
package feedback

import (
	"time"

	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

// Category names, in the order every assessment must list them.
const (
	CategoryCommunication = "Communication Skills"
	CategoryTechnical     = "Technical Knowledge"
	CategoryProblemSolve  = "Problem Solving"
	CategoryConfidence    = "Confidence and Clarity"
)

// Categories returns the fixed, ordered category names.
func Categories() []string {
	return []string{CategoryCommunication, CategoryTechnical, CategoryProblemSolve, CategoryConfidence}
}

// CategoryScore is the model's judgement for one category.
type CategoryScore struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Assessment is a validated, sanitised model reply.
type Assessment struct {
	TotalScore          float64         `json:"totalScore"`
	CategoryScores      []CategoryScore `json:"categoryScores"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areasForImprovement"`
	FinalAssessment     string          `json:"finalAssessment"`
}

// Record is a persisted assessment. Records are write-once.
type Record struct {
	// ID is assigned by the Store on Put.
	ID string `json:"id,omitempty"`

	ClassroomID string `json:"classroomId"`
	UserID      string `json:"userId"`

	Assessment

	CreatedAt    time.Time        `json:"createdAt"`
	SessionStats transcript.Stats `json:"sessionStats"`

	// RubricVersion identifies the rubric the prompt was rendered from.
	RubricVersion string `json:"rubricVersion,omitempty"`
}
