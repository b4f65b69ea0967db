package sqlgen

import (
	"errors"
	"fmt"
)

// InvariantViolation reports a rule that passed construction validation but
// cannot be lowered to a single query. This is a generator or programmer
// error, fatal for the run; it is never retried or healed.
type InvariantViolation struct {
	Message string
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("compilation invariant violation: %s", e.Message)
}

// IsInvariantViolation returns true if the error is an InvariantViolation.
// Uses errors.As to handle wrapped errors.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

func invariant(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Message: fmt.Sprintf(format, args...)}
}
