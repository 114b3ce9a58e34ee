// Package classroom plans tutoring sessions from a learner's own notes.
//
// A [Classroom] is an ordered list of items (concepts to explain, exam
// questions, or both interleaved) generated by the model for one learner at a
// given grade standard. The voice session that walks through the items, and
// the feedback scored afterwards, refer to the classroom by ID.
package classroom

import (
	"errors"
	"time"
)

// SessionType selects what the planner generates.
type SessionType string

const (
	// TypeExplain produces a list of concepts to explain.
	TypeExplain SessionType = "explain"

	// TypeOralExam produces a list of mock oral exam questions.
	TypeOralExam SessionType = "oral_exam"

	// TypeMixed interleaves concepts and questions: concept, question, ...
	TypeMixed SessionType = "mixed"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case TypeExplain, TypeOralExam, TypeMixed:
		return true
	}
	return false
}

// Classroom is a planned tutoring session.
type Classroom struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Type      SessionType `json:"type"`
	Standard  string      `json:"standard"`
	Items     []string    `json:"items"`
	Finalized bool        `json:"finalized"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ErrNotFound is returned when no classroom has the requested ID.
var ErrNotFound = errors.New("classroom: not found")

// ErrInvalidRequest is returned for missing or malformed create parameters.
var ErrInvalidRequest = errors.New("classroom: invalid request")

// PlanError reports that the planner could not produce items for a
// classroom. Callers distinguish it from storage failures to surface an
// upstream error rather than an internal one.
type PlanError struct {
	Err error
}

func (e *PlanError) Error() string { return "classroom: plan: " + e.Err.Error() }

func (e *PlanError) Unwrap() error { return e.Err }

func clone(c Classroom) Classroom {
	c.Items = append([]string(nil), c.Items...)
	return c
}
