package engine

import (
	"errors"
	"fmt"
)

// ExecutionError represents a failure detected while executing a compiled
// query against the backend.
//
// Execution errors include:
//   - Binding failures: a reference the backend cannot resolve
//   - Zero population: the filtered population is empty or indeterminate
//   - Backend failures: anything else the query engine raises
//
// The backend's raw diagnostic is preserved verbatim; the self-healing
// protocol and the audit trail both depend on it.
type ExecutionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is the backend diagnostic, unaltered.
	Message string

	// ControlID identifies the affected control.
	ControlID string
}

// ErrorCode categorizes execution errors.
type ErrorCode string

const (
	// ErrCodeBinding indicates the backend rejected a reference (column
	// absent, ambiguous, or wrong type). Recoverable exactly once via
	// self-healing.
	ErrCodeBinding ErrorCode = "BINDING_ERROR"

	// ErrCodeZeroPopulation indicates the population is empty or could not
	// be determined. Semantically distinct from FAIL: reporting it as PASS
	// would falsely attest to control effectiveness.
	ErrCodeZeroPopulation ErrorCode = "ZERO_POPULATION"

	// ErrCodeExecution indicates any other backend failure. Fatal for
	// this run.
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
)

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.ControlID != "" {
		return fmt.Sprintf("%s: %s (control=%s)", e.Code, e.Message, e.ControlID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBindingError returns true if the error is a binding failure.
// Uses errors.As to handle wrapped errors.
func IsBindingError(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeBinding
	}
	return false
}

// IsZeroPopulation returns true if the error is a zero-population guard.
// Uses errors.As to handle wrapped errors.
func IsZeroPopulation(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeZeroPopulation
	}
	return false
}

// NewZeroPopulationError creates the zero-population guard error.
func NewZeroPopulationError(controlID string) *ExecutionError {
	return &ExecutionError{
		Code:      ErrCodeZeroPopulation,
		Message:   "zero population: the base dataset contains 0 rows after filters; cannot attest to control effectiveness (possible upstream data feed failure)",
		ControlID: controlID,
	}
}
