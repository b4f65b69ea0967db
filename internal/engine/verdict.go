package engine

import "time"

// Outcome is the terminal classification of one rule execution.
type Outcome string

const (
	// OutcomePass means the exception rate is within the materiality
	// threshold.
	OutcomePass Outcome = "PASS"

	// OutcomeFail means the exception rate exceeds the materiality
	// threshold.
	OutcomeFail Outcome = "FAIL"

	// OutcomeError means the execution could not attest either way:
	// zero population, binding failure, or backend failure.
	OutcomeError Outcome = "ERROR"
)

// Verdict is the immutable result of one rule execution. It carries
// everything the audit collaborator needs to persist a hash-verifiable
// record without re-deriving compiler internals.
type Verdict struct {
	// RunID uniquely identifies this execution.
	RunID string

	ControlID string
	Outcome   Outcome

	PopulationSize              int64
	ExceptionCount              int64
	ExceptionRatePercent        float64
	MaterialityThresholdPercent float64

	// CompiledSQL is the exception statement that produced this verdict.
	CompiledSQL string

	// EvidenceHashes fingerprints the evidence: dataset alias -> sha256.
	EvidenceHashes map[string]string

	// ExceptionsSample holds at most the engine's sample limit of
	// exception rows (or groups) for the review queue.
	ExceptionsSample []map[string]any

	// ErrorCode and ErrorMessage are set only for ERROR outcomes. The
	// message preserves the backend diagnostic verbatim.
	ErrorCode    ErrorCode
	ErrorMessage string

	// Healed marks a verdict produced by a rule revision that the healing
	// protocol substituted after a binding failure.
	Healed bool

	ExecutedAt time.Time
}
