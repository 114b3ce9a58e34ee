// Package transcript turns the raw record of a tutoring conversation into an
// ordered, validated list of utterances and derives the learner statistics
// used by feedback scoring.
//
// The package is pure: Normalize performs no I/O and never mutates its input.
package transcript

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies the speaker of an utterance.
type Role string

const (
	// RoleAssistant is the AI tutor.
	RoleAssistant Role = "assistant"

	// RoleUser is the learner. Only learner utterances feed the statistics.
	RoleUser Role = "user"

	// RoleSystem carries call-control or setup messages.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the recognised roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAssistant, RoleUser, RoleSystem:
		return true
	}
	return false
}

// Utterance is one turn of the conversation.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the chronologically ordered conversation.
type Transcript []Utterance

// Lines renders the transcript as one "- role: content" line per utterance,
// in original order.
func (t Transcript) Lines() string {
	var b strings.Builder
	for _, u := range t {
		fmt.Fprintf(&b, "- %s: %s\n", u.Role, u.Content)
	}
	return b.String()
}

// ErrMalformedTranscript is matched by every MalformedTranscriptError.
var ErrMalformedTranscript = errors.New("malformed transcript")

// MalformedTranscriptError reports why a transcript input could not be
// normalised. Index is the offending entry, or -1 when the whole input is bad.
type MalformedTranscriptError struct {
	Reason string
	Index  int
	Err    error
}

func (e *MalformedTranscriptError) Error() string {
	msg := "malformed transcript: " + e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("malformed transcript: entry %d: %s", e.Index, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformedTranscript) succeed.
func (e *MalformedTranscriptError) Is(target error) bool {
	return target == ErrMalformedTranscript
}

func (e *MalformedTranscriptError) Unwrap() error { return e.Err }
