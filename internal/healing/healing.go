// Package healing implements the bounded self-healing protocol: when a
// compiled query fails dry-run validation with a binding error, the rule is
// handed back to a translation collaborator for exactly one repair attempt
// before the run is declared terminal.
//
// The bound is structural. The protocol has two states, initial and
// after-heal, and no transition loops back, so a pathological healer can
// never drive unbounded repair cycles against the same evidence.
package healing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
	"github.com/SrinivasPT/control-testing/internal/sqlgen"
)

// Request carries everything the translation collaborator needs to repair a
// rule: the failing rule, the backend diagnostic verbatim, and the columns
// each dataset actually has.
type Request struct {
	Rule             *rule.Rule
	Diagnostic       string
	AvailableColumns map[string][]string
}

// Healer revises a rule in response to a binding failure. The returned rule
// must be a new value; implementations never mutate the input.
//
// Out of process this is an LLM-backed collaborator; in tests it is
// scripted.
type Healer interface {
	Heal(ctx context.Context, req Request) (*rule.Rule, error)
}

// Protocol drives compile, dry-run, and the single repair attempt, then
// hands off to the engine for execution.
type Protocol struct {
	engine *engine.Engine
	healer Healer
	logger *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithLogger sets the protocol's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) { p.logger = logger }
}

// NewProtocol creates a Protocol. healer may be nil, in which case binding
// failures are terminal immediately.
func NewProtocol(e *engine.Engine, healer Healer, opts ...Option) *Protocol {
	p := &Protocol{engine: e, healer: healer, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run validates, compiles, dry-runs, heals at most once, and executes.
//
// Construction errors (SchemaViolation, InvariantViolation) abort with an
// error: a malformed rule is the author's problem, not a test result.
// Everything after compilation produces a verdict, never an error, so one
// broken control cannot take down a batch.
func (p *Protocol) Run(ctx context.Context, r *rule.Rule, manifests manifest.Set) (*engine.Verdict, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cq, err := sqlgen.Compile(r, manifests)
	if err != nil {
		return nil, err
	}

	result := p.engine.DryRunValidate(ctx, cq)
	if result.IsValid {
		return p.engine.ExecuteCompiled(ctx, r, cq, manifests), nil
	}

	controlID := r.Governance.ControlID
	if result.Kind != backend.KindBinding {
		// Syntax and execution failures at dry-run are not schema drift;
		// retranslating the rule cannot fix them.
		p.logger.Error("dry-run failed with unhealable error",
			"control_id", controlID, "kind", result.Kind, "error", result.Message)
		return p.engine.ErrorVerdict(r, cq, manifests, engine.ErrCodeExecution, result.Message), nil
	}
	if p.healer == nil {
		return p.engine.ErrorVerdict(r, cq, manifests, engine.ErrCodeBinding, result.Message), nil
	}

	p.logger.Info("binding failure, attempting self-heal",
		"control_id", controlID, "error", result.Message)

	healed, err := p.healer.Heal(ctx, Request{
		Rule:             r,
		Diagnostic:       result.Message,
		AvailableColumns: manifests.ColumnSets(),
	})
	if err != nil {
		herr := &HealingError{ControlID: controlID, Original: result.Message, AfterHeal: "healer failed: " + err.Error()}
		return p.engine.ErrorVerdict(r, cq, manifests, engine.ErrCodeBinding, herr.Error()), nil
	}

	if err := healed.Validate(); err != nil {
		herr := &HealingError{ControlID: controlID, Original: result.Message, AfterHeal: err.Error()}
		return p.engine.ErrorVerdict(r, cq, manifests, engine.ErrCodeBinding, herr.Error()), nil
	}
	healedCQ, err := sqlgen.Compile(healed, manifests)
	if err != nil {
		herr := &HealingError{ControlID: controlID, Original: result.Message, AfterHeal: err.Error()}
		return p.engine.ErrorVerdict(r, cq, manifests, engine.ErrCodeBinding, herr.Error()), nil
	}

	second := p.engine.DryRunValidate(ctx, healedCQ)
	if !second.IsValid {
		p.logger.Error("healed rule still fails validation",
			"control_id", controlID, "original", result.Message, "after_heal", second.Message)
		herr := &HealingError{ControlID: controlID, Original: result.Message, AfterHeal: second.Message}
		return p.engine.ErrorVerdict(r, healedCQ, manifests, engine.ErrCodeBinding, herr.Error()), nil
	}

	p.logger.Info("self-heal succeeded", "control_id", controlID)
	v := p.engine.ExecuteCompiled(ctx, healed, healedCQ, manifests)
	v.Healed = true
	return v, nil
}

// HealingError reports a terminal healing failure. Both diagnostics are
// preserved so reviewers can see what the heal changed and why it still
// failed.
type HealingError struct {
	ControlID string
	Original  string
	AfterHeal string
}

// Error implements the error interface.
func (e *HealingError) Error() string {
	return fmt.Sprintf("self-healing failed for control %s: original error: %s; after heal: %s",
		e.ControlID, e.Original, e.AfterHeal)
}
