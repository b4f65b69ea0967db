// Package sqlgen lowers a validated rule into DuckDB SQL over columnar
// evidence files.
//
// Compile is a pure function: no compiler instance, no accumulated state.
// The same rule and manifest set always produce byte-identical SQL, and the
// exception statement and the population-count statement are derived from
// one freshly built stage chain, so stage names can never collide between
// the two.
//
// The lowering keeps two predicate families strictly apart:
//
//   - population predicates (from pipeline filters) combine with AND and
//     decide which rows are in scope at all;
//   - exception predicates (negated assertions) combine with OR, so any one
//     violated assertion makes a row an exception.
//
// Collapsing these two families is the single most safety-critical bug this
// package is structured to prevent.
package sqlgen
