package classroom

import "strings"

// MaxNotesLength is the number of characters of notes sent to the planner.
const MaxNotesLength = 100_000

// PreprocessNotes normalises uploaded notes before they are embedded in a
// planning prompt: whitespace runs collapse to a single space, characters
// outside printable ASCII are dropped, and the result is cut to
// MaxNotesLength. When the cut falls mid-text, it moves back to the last
// sentence end if that keeps at least 80% of the limit.
func PreprocessNotes(text string) string {
	text = strings.Join(strings.Fields(text), " ")

	text = strings.Map(func(r rune) rune {
		if r >= 0x20 && r <= 0x7e {
			return r
		}
		return -1
	}, text)

	// Only ASCII remains, so byte and character counts agree.
	if len(text) <= MaxNotesLength {
		return text
	}
	truncated := text[:MaxNotesLength]
	if i := strings.LastIndexByte(truncated, '.'); i > MaxNotesLength*8/10 {
		return truncated[:i+1]
	}
	return truncated
}
