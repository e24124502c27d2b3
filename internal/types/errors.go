package types

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors collects per-field validation messages. A failed save
// surfaces one ValidationErrors value covering every invalid field; nothing
// is persisted.
type ValidationErrors map[string][]string

// Add appends a message for a field.
func (e ValidationErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Any reports whether at least one message was recorded.
func (e ValidationErrors) Any() bool { return len(e) > 0 }

// On returns the messages recorded for a field.
func (e ValidationErrors) On(field string) []string { return e[field] }

// Error implements the error interface with a stable field ordering.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(e))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", f, strings.Join(e[f], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Merge folds other's messages into e.
func (e ValidationErrors) Merge(other ValidationErrors) {
	for field, msgs := range other {
		e[field] = append(e[field], msgs...)
	}
}
