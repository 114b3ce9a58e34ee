package transcript

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Stats summarises learner engagement.
type Stats struct {
	// TotalResponses is the number of learner utterances.
	TotalResponses int `json:"totalResponses"`

	// AvgResponseLength is the mean character count of learner utterances,
	// or 0 when there are none.
	AvgResponseLength float64 `json:"avgResponseLength"`
}

// rawUtterance detects missing fields in serialized input.
type rawUtterance struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// Normalize parses in into a Transcript and computes its Stats.
// The returned transcript never aliases the caller's slice.
func Normalize(in Input) (Transcript, Stats, error) {
	if !in.set {
		return nil, Stats{}, &MalformedTranscriptError{Reason: "transcript is required", Index: -1}
	}

	var (
		t   Transcript
		err error
	)
	if in.structured {
		t, err = fromStructured(in.utterances)
	} else {
		t, err = fromSerialized(in.raw)
	}
	if err != nil {
		return nil, Stats{}, err
	}
	return t, ComputeStats(t), nil
}

func fromSerialized(raw string) (Transcript, error) {
	var entries []*rawUtterance
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &MalformedTranscriptError{Reason: "not a JSON array of utterances", Index: -1, Err: err}
	}

	t := make(Transcript, 0, len(entries))
	for i, e := range entries {
		switch {
		case e == nil:
			return nil, &MalformedTranscriptError{Reason: "entry is null", Index: i}
		case e.Role == nil:
			return nil, &MalformedTranscriptError{Reason: "missing role", Index: i}
		case e.Content == nil:
			return nil, &MalformedTranscriptError{Reason: "missing content", Index: i}
		}
		u := Utterance{Role: Role(*e.Role), Content: *e.Content}
		if !u.Role.Valid() {
			return nil, &MalformedTranscriptError{Reason: fmt.Sprintf("unknown role %q", u.Role), Index: i}
		}
		t = append(t, u)
	}
	return t, nil
}

func fromStructured(us []Utterance) (Transcript, error) {
	t := make(Transcript, len(us))
	for i, u := range us {
		if u.Role == "" {
			return nil, &MalformedTranscriptError{Reason: "missing role", Index: i}
		}
		if !u.Role.Valid() {
			return nil, &MalformedTranscriptError{Reason: fmt.Sprintf("unknown role %q", u.Role), Index: i}
		}
		t[i] = u
	}
	return t, nil
}

// ComputeStats derives learner statistics from t. Lengths are counted in
// Unicode code points.
func ComputeStats(t Transcript) Stats {
	var count, total int
	for _, u := range t {
		if u.Role != RoleUser {
			continue
		}
		count++
		total += utf8.RuneCountInString(u.Content)
	}
	if count == 0 {
		return Stats{}
	}
	return Stats{
		TotalResponses:    count,
		AvgResponseLength: float64(total) / float64(count),
	}
}
