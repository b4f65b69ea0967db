package rule

// AssertionMeta carries the identity and tolerance shared by all assertion
// variants. MaterialityThresholdPercent is the maximum tolerated exception
// rate before the control fails; 0.0 means zero tolerance.
type AssertionMeta struct {
	AssertionID                 string
	Description                 string
	MaterialityThresholdPercent float64
}

// Meta returns the shared assertion metadata.
func (m AssertionMeta) Meta() AssertionMeta { return m }

// Assertion is a sealed interface over the assertion taxonomy.
//
// Assertion types:
//   - ValueMatch: field compared to a literal (row-level)
//   - Presence: field must be populated (row-level)
//   - TemporalSequence: strict ordering over a chain of date fields (row-level)
//   - TemporalDateMath: date vs date + day offset (row-level)
//   - ColumnComparison: two fields compared directly (row-level)
//   - Aggregation: grouped metric vs threshold (group-level)
//
// Row-level exception predicates combine with OR; a row violating any one
// assertion is an exception. Aggregations route to HAVING instead.
type Assertion interface {
	assertionNode() // Marker method - seals interface to this package
	Meta() AssertionMeta
}

// ValueMatch asserts field <op> expected for every population row.
//
// An Expected of Null with eq/neq compiles to IS NULL / IS NOT NULL.
// String comparisons trim and upper-case both sides unless CaseSensitive
// is set, so the zero value folds.
type ValueMatch struct {
	AssertionMeta
	Field         string
	Operator      Op
	Expected      Literal
	CaseSensitive bool
}

func (ValueMatch) assertionNode() {}

// Presence asserts that a field is populated. It exists as its own variant
// so that "the record must exist" can never be expressed as a population
// filter, which would silently exclude the very rows that should fail.
type Presence struct {
	AssertionMeta
	Field string
}

func (Presence) assertionNode() {}

// TemporalSequence asserts strict ordering of consecutive fields in
// EventChain: chain[0] < chain[1] < ... < chain[n-1].
type TemporalSequence struct {
	AssertionMeta
	EventChain []string
}

func (TemporalSequence) assertionNode() {}

// TemporalDateMath asserts base_date <op> target_date + offset_days using
// calendar-day interval arithmetic. Both sides are cast to DATE so
// string-typed source columns are tolerated.
type TemporalDateMath struct {
	AssertionMeta
	BaseDateField   string
	Operator        Op
	TargetDateField string
	OffsetDays      int
}

func (TemporalDateMath) assertionNode() {}

// ColumnComparison asserts left_field <op> right_field. Both sides are
// field references; neither is ever literal-quoted.
type ColumnComparison struct {
	AssertionMeta
	LeftField  string
	Operator   Op
	RightField string
}

func (ColumnComparison) assertionNode() {}

// AggFunc identifies an aggregation function.
type AggFunc string

const (
	AggSum   AggFunc = "SUM"
	AggCount AggFunc = "COUNT"
	AggAvg   AggFunc = "AVG"
	AggMin   AggFunc = "MIN"
	AggMax   AggFunc = "MAX"
)

// ValidAggFuncs defines allowed aggregation functions.
var ValidAggFuncs = map[AggFunc]bool{
	AggSum:   true,
	AggCount: true,
	AggAvg:   true,
	AggMin:   true,
	AggMax:   true,
}

// Aggregation asserts FUNC(metric) <op> threshold per group. Groups whose
// aggregate violates the assertion become grouped exceptions; Aggregation
// never contributes to the row-level exception list.
type Aggregation struct {
	AssertionMeta
	GroupByFields []string
	MetricField   string
	Function      AggFunc
	Operator      Op
	Threshold     float64
}

func (Aggregation) assertionNode() {}
