package validation

import (
	"fmt"
	"strings"
)

// Errors aggregates field-level validation failures for one request.
type Errors struct {
	Fields []FieldError `json:"errors"`
}

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Errors) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *Errors) HasErrors() bool { return len(e.Fields) > 0 }
