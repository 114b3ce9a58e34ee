package feedback

import (
	"strconv"
	"strings"

	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

// BuildPrompt renders the grading prompt for t. The output is deterministic
// for identical inputs.
func BuildPrompt(t transcript.Transcript, stats transcript.Stats, r Rubric) string {
	var b strings.Builder

	for _, line := range r.Preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(r.Guidelines) > 0 {
		b.WriteString("\nIMPORTANT SCORING GUIDELINES:\n")
		writeBullets(&b, r.Guidelines)
	}

	b.WriteString("\nTranscript:\n")
	b.WriteString(t.Lines())

	b.WriteString("\nSession Statistics:\n")
	b.WriteString("- Total student responses: ")
	b.WriteString(strconv.Itoa(stats.TotalResponses))
	b.WriteString("\n- Average response length: ")
	b.WriteString(strconv.FormatFloat(stats.AvgResponseLength, 'f', -1, 64))
	b.WriteString(" characters\n")

	b.WriteString("\nPlease provide a comprehensive analysis following these strict criteria:\n")
	b.WriteString("\n1. Overall Assessment:\n")
	writeBullets(&b, r.Overall)

	b.WriteString("\n2. Category Breakdown (score each from 0-100 with specific evidence):\n")
	for _, c := range r.Categories {
		b.WriteString("\n")
		b.WriteString(c.Name)
		b.WriteString(":\n")
		writeBullets(&b, c.Criteria)
	}

	b.WriteString("\n3. Key Strengths:\n")
	writeBullets(&b, r.Strengths)
	b.WriteString("\n4. Areas for Improvement:\n")
	writeBullets(&b, r.Improvements)

	b.WriteString("\nFormat your response as a JSON object with clean, unformatted text (no markdown).\n")
	b.WriteString("Reply with the JSON object only: no code fences, no prose before or after it.\n")
	b.WriteString("categoryScores must contain exactly these four entries in this order: ")
	b.WriteString(strings.Join(Categories(), ", "))
	b.WriteString(".\n")
	writeContract(&b)
	return b.String()
}

func writeBullets(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
}

func writeContract(b *strings.Builder) {
	b.WriteString("{\n")
	b.WriteString("  \"totalScore\": number,\n")
	b.WriteString("  \"categoryScores\": [\n")
	cats := Categories()
	for i, name := range cats {
		b.WriteString("    {\"name\": \"")
		b.WriteString(name)
		b.WriteString("\", \"score\": number, \"comment\": \"detailed analysis without markdown\"}")
		if i < len(cats)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ],\n")
	b.WriteString("  \"strengths\": [\"specific strength 1\", \"specific strength 2\"],\n")
	b.WriteString("  \"areasForImprovement\": [\"specific area 1\", \"specific area 2\"],\n")
	b.WriteString("  \"finalAssessment\": \"overall summary without markdown\"\n")
	b.WriteString("}\n")
}
