// Package backend defines the query-backend boundary: a narrow interface
// over a SQL-over-columnar-files engine, plus the DuckDB implementation the
// module ships with. The engine depends only on the interface; tests script
// it with stubs.
package backend

import (
	"context"
	"strings"
)

// ErrorKind classifies a dry-run or execution failure.
type ErrorKind string

const (
	// KindNone means the statement parsed and bound cleanly.
	KindNone ErrorKind = ""

	// KindSyntax means the statement did not parse.
	KindSyntax ErrorKind = "syntax"

	// KindBinding means a reference did not bind: column absent, ambiguous,
	// or wrong type. Recoverable exactly once via self-healing.
	KindBinding ErrorKind = "binding"

	// KindExecution is any other backend failure. Fatal for the run.
	KindExecution ErrorKind = "execution"
)

// ValidationResult is the structured outcome of a dry run.
type ValidationResult struct {
	IsValid bool
	Kind    ErrorKind
	// Message is the backend's raw diagnostic, preserved verbatim for the
	// self-healing protocol and the audit record.
	Message string
}

// Backend executes compiled SQL against columnar evidence. Implementations
// must stream rather than materialize the population, so memory is bounded
// by exception-set size. One Backend serves one rule execution at a time;
// callers running rules in parallel open one Backend each.
type Backend interface {
	// QueryCount runs a single-value COUNT statement.
	QueryCount(ctx context.Context, sql string) (int64, error)

	// QueryExceptions runs the exception statement, returning the total row
	// count and at most sampleLimit rows as column->value maps.
	QueryExceptions(ctx context.Context, sql string, sampleLimit int) (int64, []map[string]any, error)

	// DryRun forces the backend to parse and bind the statement without
	// materializing results.
	DryRun(ctx context.Context, sql string) ValidationResult

	Close() error
}

// Classify maps a backend error message onto an ErrorKind. DuckDB prefixes
// its diagnostics ("Parser Error:", "Binder Error:", "Catalog Error:");
// anything unrecognized is treated as an execution failure.
func Classify(message string) ErrorKind {
	switch {
	case strings.Contains(message, "Parser Error"), strings.Contains(message, "syntax error"):
		return KindSyntax
	case strings.Contains(message, "Binder Error"),
		strings.Contains(message, "Catalog Error"),
		strings.Contains(message, "Conversion Error"):
		return KindBinding
	default:
		return KindExecution
	}
}
