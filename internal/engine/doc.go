// Package engine executes compiled control queries and renders verdicts.
//
// A verdict is PASS, FAIL, or ERROR. PASS and FAIL compare the exception
// rate against the rule's materiality threshold; ERROR means the run could
// not attest either way (zero population, binding failure, backend failure)
// and is never conflated with PASS. Backend diagnostics are preserved
// verbatim on the verdict so the self-healing protocol and the audit trail
// can act on them.
package engine
