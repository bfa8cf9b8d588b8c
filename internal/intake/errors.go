package intake

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a single field failure. The intake workflow re-prompts
// the patient based on the kind, so a generic failure is never acceptable.
type ErrorKind string

const (
	MissingField ErrorKind = "MissingField"
	TypeMismatch ErrorKind = "TypeMismatch"
	OutOfRange   ErrorKind = "OutOfRange"
)

// FieldError pinpoints one failed field by its dotted path, e.g.
// "demographics.age" or "screeningResponses.phq9[3]".
type FieldError struct {
	Field  string    `json:"field"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// ValidationError collects every field failure found in a candidate payload.
// Field order follows the schema's section order, so the same payload always
// produces the same error list.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s (%s)", f.Field, f.Detail, f.Kind)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field string, kind ErrorKind, detail string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Kind: kind, Detail: detail})
}

// HasField reports whether any failure names the given field path.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
