package rule

// Op identifies a comparison operator in the DSL.
type Op string

// Comparison operators. The sets below define which operators each
// construct accepts; anything outside them is a SchemaViolation.
const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpLt    Op = "lt"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpNotIn Op = "not_in"
)

// ValidCompareOps defines the operators allowed on filters, column
// comparisons, date math, and aggregations.
var ValidCompareOps = map[Op]bool{
	OpEq:  true,
	OpNeq: true,
	OpGt:  true,
	OpLt:  true,
	OpGte: true,
	OpLte: true,
}

// ValidMatchOps defines the operators allowed on value-match assertions.
// Extends the comparison set with list membership.
var ValidMatchOps = map[Op]bool{
	OpEq:    true,
	OpNeq:   true,
	OpGt:    true,
	OpLt:    true,
	OpGte:   true,
	OpLte:   true,
	OpIn:    true,
	OpNotIn: true,
}

// Action is a sealed interface over population-pipeline actions.
//
// Action types:
//   - FilterComparison: keep rows where field <op> literal
//   - FilterInList: keep rows where field is in a literal list
//   - FilterIsNull: keep rows where field IS (NOT) NULL
//   - JoinLeft: left outer join against another dataset
//
// Filters scope the population; they must never be used to exclude rows
// that should be flagged as exceptions. Presence checks belong in
// assertions (see Presence), which cannot be expressed as a filter.
type Action interface {
	actionNode() // Marker method - seals interface to this package
}

// FilterComparison keeps population rows satisfying field <op> value.
type FilterComparison struct {
	Field    string
	Operator Op
	Value    Literal
}

func (FilterComparison) actionNode() {}

// FilterInList keeps population rows whose field is one of Values.
type FilterInList struct {
	Field  string
	Values List
}

func (FilterInList) actionNode() {}

// FilterIsNull keeps population rows where the field is null (IsNull true)
// or not null (IsNull false).
type FilterIsNull struct {
	Field  string
	IsNull bool
}

func (FilterIsNull) actionNode() {}

// JoinLeft left-joins the current stage against RightDataset on a composite
// key. LeftKeys and RightKeys are positional pairs and must have equal,
// non-zero length. The joined stage carries all current-stage columns plus
// the right-side columns except the right join keys.
type JoinLeft struct {
	LeftDataset  string
	RightDataset string
	LeftKeys     []string
	RightKeys    []string
}

func (JoinLeft) actionNode() {}

// Step is a single population-pipeline step. StepID names the stage a
// JoinLeft introduces and must be unique within the pipeline.
type Step struct {
	StepID string
	Action Action
}

// Pipeline derives the in-scope population: a base dataset refined by an
// ordered sequence of steps, with optional audit sampling applied last.
type Pipeline struct {
	BaseDataset string
	Steps       []Step
	Sampling    *Sampling
}

// SamplingMethod identifies an audit sampling methodology.
type SamplingMethod string

const (
	SamplingRandom     SamplingMethod = "random"
	SamplingStratified SamplingMethod = "stratified"
	SamplingSystematic SamplingMethod = "systematic"
	SamplingJudgmental SamplingMethod = "judgmental"
)

// ValidSamplingMethods defines allowed sampling methods.
var ValidSamplingMethods = map[SamplingMethod]bool{
	SamplingRandom:     true,
	SamplingStratified: true,
	SamplingSystematic: true,
	SamplingJudgmental: true,
}

// Sampling configures reservoir sampling of the final population stage.
// Exactly one of SampleSize or SamplePercentage must be set when enabled.
type Sampling struct {
	Enabled             bool
	Method              SamplingMethod
	SampleSize          *int
	SamplePercentage    *float64
	StratificationField string
	RandomSeed          *int
	Justification       string
}
