package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
	"github.com/SrinivasPT/control-testing/internal/sqlgen"
)

// DefaultSampleLimit caps the exception rows carried on a verdict for the
// review queue. The full exception count is always exact.
const DefaultSampleLimit = 100

// RunIDGenerator generates unique run identifiers for verdict correlation.
// Implemented by UUIDGenerator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator produces RFC 4122 UUIDs via github.com/google/uuid.
type UUIDGenerator struct{}

// Generate implements RunIDGenerator.
func (UUIDGenerator) Generate() string { return uuid.NewString() }

// FixedGenerator returns a constant run ID, for deterministic tests.
type FixedGenerator struct{ ID string }

// Generate implements RunIDGenerator.
func (g FixedGenerator) Generate() string { return g.ID }

// Engine executes compiled control queries and classifies the outcome.
//
// One execution is synchronous and blocking. The engine holds no cross-rule
// mutable state: rules are independent and may run in parallel, each with
// its own Engine and backend session. Timeouts are the caller's concern,
// imposed through ctx at the backend boundary.
type Engine struct {
	backend     backend.Backend
	logger      *slog.Logger
	runIDs      RunIDGenerator
	now         func() time.Time
	sampleLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSampleLimit sets how many exception rows a verdict carries.
func WithSampleLimit(limit int) Option {
	return func(e *Engine) { e.sampleLimit = limit }
}

// WithRunIDGenerator sets the run ID source. Tests use FixedGenerator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithClock sets the time source for ExecutedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given backend.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:     b,
		logger:      slog.Default(),
		runIDs:      UUIDGenerator{},
		now:         func() time.Time { return time.Now().UTC() },
		sampleLimit: DefaultSampleLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates, compiles, and runs one rule against the evidence named
// by the manifests, returning its verdict.
//
// Construction and compilation errors (SchemaViolation,
// InvariantViolation) abort with an error before anything executes.
// Backend failures never abort: they are classified and reported as ERROR
// verdicts with the diagnostic preserved verbatim.
func (e *Engine) Execute(ctx context.Context, r *rule.Rule, manifests manifest.Set) (*Verdict, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cq, err := sqlgen.Compile(r, manifests)
	if err != nil {
		return nil, err
	}
	return e.ExecuteCompiled(ctx, r, cq, manifests), nil
}

// ExecuteCompiled runs an already-compiled query. The state machine:
//
//  1. Run the population count. A backend error or a zero count emits
//     ERROR: a zero population must never be reported as PASS.
//  2. Run the exception query; count rows, keep a bounded sample.
//  3. exception rate = exceptions / population * 100.
//  4. materiality = max threshold across assertions (default 0.0).
//  5. PASS if rate <= materiality, else FAIL.
func (e *Engine) ExecuteCompiled(ctx context.Context, r *rule.Rule, cq *sqlgen.CompiledQuery, manifests manifest.Set) *Verdict {
	v := &Verdict{
		RunID:          e.runIDs.Generate(),
		ControlID:      r.Governance.ControlID,
		CompiledSQL:    cq.ExceptionSQL,
		EvidenceHashes: manifests.Hashes(),
		ExecutedAt:     e.now(),
	}

	e.logger.Debug("executing population count", "control_id", v.ControlID, "run_id", v.RunID)
	population, err := e.backend.QueryCount(ctx, cq.PopulationCountSQL)
	if err != nil {
		e.logger.Warn("population count failed", "control_id", v.ControlID, "error", err)
		v.Outcome = OutcomeError
		v.ErrorCode = ErrCodeZeroPopulation
		v.ErrorMessage = "indeterminate population: " + err.Error()
		return v
	}
	if population == 0 {
		e.logger.Warn("zero population", "control_id", v.ControlID)
		zero := NewZeroPopulationError(v.ControlID)
		v.Outcome = OutcomeError
		v.ErrorCode = zero.Code
		v.ErrorMessage = zero.Message
		return v
	}
	v.PopulationSize = population

	exceptions, sample, err := e.backend.QueryExceptions(ctx, cq.ExceptionSQL, e.sampleLimit)
	if err != nil {
		code := ErrCodeExecution
		if backend.Classify(err.Error()) == backend.KindBinding {
			code = ErrCodeBinding
		}
		e.logger.Warn("exception query failed", "control_id", v.ControlID, "code", code, "error", err)
		v.Outcome = OutcomeError
		v.ErrorCode = code
		v.ErrorMessage = err.Error()
		return v
	}

	v.ExceptionCount = exceptions
	v.ExceptionsSample = sample
	v.ExceptionRatePercent = roundRate(float64(exceptions) / float64(population) * 100)
	v.MaterialityThresholdPercent = r.MaxMateriality()

	if v.ExceptionRatePercent <= v.MaterialityThresholdPercent {
		v.Outcome = OutcomePass
	} else {
		v.Outcome = OutcomeFail
	}

	e.logger.Info("execution complete",
		"control_id", v.ControlID,
		"run_id", v.RunID,
		"verdict", v.Outcome,
		"population", v.PopulationSize,
		"exceptions", v.ExceptionCount,
		"rate_percent", v.ExceptionRatePercent)
	return v
}

// ErrorVerdict fabricates an ERROR verdict for failures detected before
// execution, so preflight failures still leave an auditable record with a
// run ID and evidence fingerprint. cq may be nil when compilation itself
// never succeeded.
func (e *Engine) ErrorVerdict(r *rule.Rule, cq *sqlgen.CompiledQuery, manifests manifest.Set, code ErrorCode, message string) *Verdict {
	v := &Verdict{
		RunID:          e.runIDs.Generate(),
		ControlID:      r.Governance.ControlID,
		Outcome:        OutcomeError,
		ErrorCode:      code,
		ErrorMessage:   message,
		EvidenceHashes: manifests.Hashes(),
		ExecutedAt:     e.now(),
	}
	if cq != nil {
		v.CompiledSQL = cq.ExceptionSQL
	}
	return v
}

// DryRunValidate parses and binds both compiled statements against the
// backend without materializing results. The first failure wins; its
// diagnostic is returned verbatim.
func (e *Engine) DryRunValidate(ctx context.Context, cq *sqlgen.CompiledQuery) backend.ValidationResult {
	if result := e.backend.DryRun(ctx, cq.ExceptionSQL); !result.IsValid {
		return result
	}
	return e.backend.DryRun(ctx, cq.PopulationCountSQL)
}

func roundRate(rate float64) float64 {
	return math.Round(rate*100) / 100
}
