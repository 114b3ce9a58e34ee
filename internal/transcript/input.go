package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Input is a transcript as received at the boundary: either the serialized
// JSON text of an utterance array, or an already-structured list.
// The zero value is an unset input and fails normalisation.
type Input struct {
	raw        string
	utterances []Utterance
	structured bool
	set        bool
}

// FromJSON wraps a serialized transcript, e.g. the form field sent by the
// browser after a voice call.
func FromJSON(s string) Input {
	return Input{raw: s, set: true}
}

// FromUtterances wraps an already-structured transcript.
func FromUtterances(u []Utterance) Input {
	return Input{utterances: u, structured: true, set: true}
}

// IsZero reports whether the input was never set.
func (in Input) IsZero() bool { return !in.set }

// UnmarshalJSON accepts either a JSON string containing the serialized array
// or the array itself.
func (in *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*in = Input{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = FromJSON(s)
		return nil
	case data[0] == '[':
		// Keep the raw array so field presence is checked by Normalize.
		*in = FromJSON(string(data))
		return nil
	default:
		return errors.New("transcript must be a JSON array or a string holding one")
	}
}

// MarshalJSON emits the structured form when available, otherwise the raw text.
func (in Input) MarshalJSON() ([]byte, error) {
	if !in.set {
		return []byte("null"), nil
	}
	if in.structured {
		return json.Marshal(in.utterances)
	}
	return json.Marshal(in.raw)
}
