package rule

import (
	"errors"
	"fmt"
)

// SchemaViolation reports a malformed rule detected at construction.
// The rule never reaches the compiler or the query backend: construction
// errors abort immediately with no retry.
type SchemaViolation struct {
	// Field is the path of the offending field, e.g.
	// "assertions[2].operator" or "population.steps[0].action.left_keys".
	Field string

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: %s: %s", e.Field, e.Message)
}

// IsSchemaViolation returns true if the error is a SchemaViolation.
// Uses errors.As to handle wrapped errors.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolation
	return errors.As(err, &sv)
}

func violation(field, format string, args ...any) *SchemaViolation {
	return &SchemaViolation{Field: field, Message: fmt.Sprintf(format, args...)}
}
