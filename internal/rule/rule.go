package rule

// TestingFrequency identifies how often a control is tested.
type TestingFrequency string

const (
	FrequencyContinuous TestingFrequency = "Continuous"
	FrequencyDaily      TestingFrequency = "Daily"
	FrequencyWeekly     TestingFrequency = "Weekly"
	FrequencyQuarterly  TestingFrequency = "Quarterly"
	FrequencyAnnual     TestingFrequency = "Annual"
)

// ValidTestingFrequencies defines allowed testing cadences.
var ValidTestingFrequencies = map[TestingFrequency]bool{
	FrequencyContinuous: true,
	FrequencyDaily:      true,
	FrequencyWeekly:     true,
	FrequencyQuarterly:  true,
	FrequencyAnnual:     true,
}

// Governance links a control to regulatory frameworks and ownership.
// Opaque to the compiler; carried through to the audit record verbatim.
type Governance struct {
	ControlID           string
	Version             string
	OwnerRole           string
	TestingFrequency    TestingFrequency
	RegulatoryCitations []string
	RiskObjective       string
}

// DataType identifies the declared type of a bound evidence column.
type DataType string

const (
	TypeString    DataType = "string"
	TypeNumeric   DataType = "numeric"
	TypeTimestamp DataType = "timestamp"
	TypeBoolean   DataType = "boolean"
	TypeDate      DataType = "date"
)

// ValidDataTypes defines allowed ontology binding types.
var ValidDataTypes = map[DataType]bool{
	TypeString:    true,
	TypeNumeric:   true,
	TypeTimestamp: true,
	TypeBoolean:   true,
	TypeDate:      true,
}

// OntologyBinding maps a business term to a physical evidence column.
// Used only for preflight schema-drift checks, never for compilation.
type OntologyBinding struct {
	BusinessTerm   string
	DatasetAlias   string
	TechnicalField string
	DataType       DataType
}

// ReviewerWorkflow identifies the human-review workflow for exceptions.
type ReviewerWorkflow string

const (
	WorkflowAutoClose ReviewerWorkflow = "Auto-Close_If_Pass"
	WorkflowSignoff   ReviewerWorkflow = "Requires_Human_Signoff"
	WorkflowFourEyes  ReviewerWorkflow = "Four_Eyes_Review"
)

// ValidReviewerWorkflows defines allowed reviewer workflows.
var ValidReviewerWorkflows = map[ReviewerWorkflow]bool{
	WorkflowAutoClose: true,
	WorkflowSignoff:   true,
	WorkflowFourEyes:  true,
}

// EvidenceRequirements configures retention and exception routing.
// Opaque to the compiler.
type EvidenceRequirements struct {
	RetentionYears        int
	ReviewerWorkflow      ReviewerWorkflow
	ExceptionRoutingQueue string
}

// Rule is the canonical representation of a compliance control. Once a rule
// is compiled it must be treated as immutable: the compiler and engine never
// mutate it, and a caller owns it exclusively for the duration of one
// compilation and execution.
type Rule struct {
	Governance       Governance
	OntologyBindings []OntologyBinding
	Population       Pipeline
	Assertions       []Assertion
	Evidence         EvidenceRequirements
}

// MaxMateriality returns the largest materiality threshold declared across
// all assertions, defaulting to 0.0 (zero tolerance) with no assertions.
func (r *Rule) MaxMateriality() float64 {
	max := 0.0
	for _, a := range r.Assertions {
		if m := a.Meta().MaterialityThresholdPercent; m > max {
			max = m
		}
	}
	return max
}
