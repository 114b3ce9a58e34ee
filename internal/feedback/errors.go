package feedback

import (
	"errors"
	"fmt"

	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("feedback: not found")

// ErrInvalidRequest is returned when classroom or user identifiers are missing.
var ErrInvalidRequest = errors.New("feedback: invalid request")

// GenerationFailureError wraps a failed model call: transport error,
// timeout, missing credentials or an empty reply.
type GenerationFailureError struct {
	Err error
}

func (e *GenerationFailureError) Error() string {
	return fmt.Sprintf("feedback generation failed: %v", e.Err)
}

func (e *GenerationFailureError) Unwrap() error { return e.Err }

// InvalidJSONError reports a model reply that is not parseable JSON.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("model reply is not valid JSON: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error { return e.Err }

// SchemaValidationError names the first field of a parsed reply that does not
// satisfy the assessment shape.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return "model reply failed validation: " + e.Reason
	}
	return fmt.Sprintf("model reply failed validation: %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failed Store write.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save feedback: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Error kinds returned by ErrorKind.
const (
	KindNone                = ""
	KindInvalidRequest      = "invalid_request"
	KindMalformedTranscript = "malformed_transcript"
	KindGenerationFailure   = "generation_failure"
	KindInvalidJSON         = "invalid_json"
	KindSchemaValidation    = "schema_validation"
	KindPersistence         = "persistence"
	KindInternal            = "internal"
)

// ErrorKind classifies err into one of the Kind* labels.
func ErrorKind(err error) string {
	var (
		genErr    *GenerationFailureError
		jsonErr   *InvalidJSONError
		schemaErr *SchemaValidationError
		storeErr  *PersistenceError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, transcript.ErrMalformedTranscript):
		return KindMalformedTranscript
	case errors.As(err, &genErr):
		return KindGenerationFailure
	case errors.As(err, &jsonErr):
		return KindInvalidJSON
	case errors.As(err, &schemaErr):
		return KindSchemaValidation
	case errors.As(err, &storeErr):
		return KindPersistence
	default:
		return KindInternal
	}
}
