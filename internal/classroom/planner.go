package classroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
)

// Planner turns a learner's notes into a list of session items.
type Planner interface {
	Plan(ctx context.Context, p PlanInput) ([]string, error)
}

// PlanInput is everything the planner needs to know about a session.
type PlanInput struct {
	UserID   string
	Notes    string
	Type     SessionType
	Standard string
}

// LLMPlanner is a Planner backed by an llm.Provider.
type LLMPlanner struct {
	provider    llm.Provider
	temperature float64
}

var _ Planner = (*LLMPlanner)(nil)

// NewLLMPlanner returns a Planner that asks p for the session items.
// temperature is passed through on every request.
func NewLLMPlanner(p llm.Provider, temperature float64) (*LLMPlanner, error) {
	if p == nil {
		return nil, errors.New("classroom: llm provider must not be nil")
	}
	return &LLMPlanner{provider: p, temperature: temperature}, nil
}

// Plan implements Planner. The model must reply with a JSON array of strings,
// optionally wrapped in a code fence.
func (pl *LLMPlanner) Plan(ctx context.Context, in PlanInput) ([]string, error) {
	resp, err := pl.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: BuildPlanPrompt(in)}},
		Temperature: pl.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("classroom: plan: %w", err)
	}
	if resp == nil {
		return nil, errors.New("classroom: plan: empty reply")
	}
	return ParseItems(resp.Content)
}

// ParseItems decodes a model reply into session items. Blank items are
// dropped; an empty result is an error.
func ParseItems(reply string) ([]string, error) {
	var raw []string
	if err := json.Unmarshal([]byte(feedback.StripCodeFence(reply)), &raw); err != nil {
		return nil, fmt.Errorf("classroom: reply is not a JSON array of strings: %w", err)
	}
	items := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			items = append(items, s)
		}
	}
	if len(items) == 0 {
		return nil, errors.New("classroom: reply contains no items")
	}
	return items, nil
}

// BuildPlanPrompt renders the planning prompt for in.
func BuildPlanPrompt(in PlanInput) string {
	var b strings.Builder
	b.WriteString(`You are Tutorly, an AI-powered study companion. A student uploads their own notes or textbook excerpts. Your job is to:
1. QUIZ the student on key facts and concepts from their materials, asking clear, concise questions.
2. EXPLAIN any topic they ask about, using simple language and examples drawn only from their provided content.
3. RUN a mock oral exam: pose open-ended questions, then give constructive feedback and follow-up questions.
4. ADAPT difficulty: if they struggle, break concepts into smaller steps; if they excel, introduce deeper challenges.

Always reference only the student's notes. Keep a friendly, encouraging tone.

`)
	fmt.Fprintf(&b, "You are teaching the student with user id %s.\n", in.UserID)
	fmt.Fprintf(&b, "The student finds these notes difficult to understand:\n%s\n\n", in.Notes)

	switch in.Type {
	case TypeExplain:
		fmt.Fprintf(&b, "Explain the concepts in the notes in detail with examples, for a standard %s student. Return the concepts formatted like this:\n", in.Standard)
		b.WriteString(`["Concept 1", "Concept 2", "Concept 3"]`)
	case TypeOralExam:
		fmt.Fprintf(&b, "Generate mock oral exam questions about the notes, for a standard %s student. Return the questions formatted like this:\n", in.Standard)
		b.WriteString(`["Question 1", "Question 2", "Question 3"]`)
	default:
		fmt.Fprintf(&b, "Explain each concept and then ask a question about it, for a standard %s student. Return the items formatted like this:\n", in.Standard)
		b.WriteString(`["Concept 1", "Question 1", "Concept 2", "Question 2", "Concept 3", "Question 3"]`)
	}

	b.WriteString("\n\nReturn only the JSON array without any additional text.\n")
	b.WriteString(`Do not use "/" or "*" or any other special character that might break the voice assistant.`)
	b.WriteString("\n")
	return b.String()
}
