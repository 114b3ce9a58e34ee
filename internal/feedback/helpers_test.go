package feedback_test

import (
	"encoding/json"
	"testing"
)

// validReply builds a well-formed model reply. Mutate the returned map to
// produce invalid variants.
func validReply() map[string]any {
	return map[string]any{
		"totalScore": 42,
		"categoryScores": []any{
			map[string]any{"name": "Communication Skills", "score": 40, "comment": "**Short** answers."},
			map[string]any{"name": "Technical Knowledge", "score": 35, "comment": "Used `photosynthesis` correctly."},
			map[string]any{"name": "Problem Solving", "score": 20, "comment": "## Limited\nNo reasoning shown."},
			map[string]any{"name": "Confidence and Clarity", "score": 30, "comment": "Hesitant.\n- paused often\n* trailed off"},
		},
		"strengths":           []any{"*Accurate* definition"},
		"areasForImprovement": []any{"Elaborate more", "Ask questions"},
		"finalAssessment":     "# Summary\nMinimal engagement.\n\n\n\nKeep practising.",
	}
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
