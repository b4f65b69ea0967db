package rule

import (
	"strconv"
	"time"
)

// Literal is a sealed interface over the value types a rule may carry.
// Only String, Number, Bool, Time, List, and Null implement it.
//
// Numbers are float64 on the wire (JSON); rendering uses minimal decimal
// notation so that equal inputs always produce byte-identical SQL.
type Literal interface {
	literalNode() // Marker method - seals interface to this package
}

// String is a string literal.
type String string

func (String) literalNode() {}

// Number is a numeric literal (integer or decimal).
type Number float64

func (Number) literalNode() {}

// Bool is a boolean literal.
type Bool bool

func (Bool) literalNode() {}

// Time is a timestamp literal.
type Time time.Time

func (Time) literalNode() {}

// List is an ordered list of scalar literals, used by in/not_in operators.
type List []Literal

func (List) literalNode() {}

// Null is the explicit null literal. Comparing against Null routes to
// IS NULL / IS NOT NULL semantics in the compiler, never to "= NULL".
type Null struct{}

func (Null) literalNode() {}

// FormatNumber renders a Number with minimal digits and no exponent,
// so 2000000.0 renders as "2000000" and 0.25 as "0.25".
func FormatNumber(n Number) string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}
