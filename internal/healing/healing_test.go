package healing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// fakeBackend fails dry-run for any statement mentioning failSubstr and
// executes everything else with scripted results.
type fakeBackend struct {
	failSubstr string
	diagnostic string
	kind       backend.ErrorKind

	count      int64
	exceptions int64

	dryRunQueries    []string
	executedCounts   []string
	executedExcepted []string
}

func (f *fakeBackend) DryRun(_ context.Context, query string) backend.ValidationResult {
	f.dryRunQueries = append(f.dryRunQueries, query)
	if f.failSubstr != "" && strings.Contains(query, f.failSubstr) {
		return backend.ValidationResult{IsValid: false, Kind: f.kind, Message: f.diagnostic}
	}
	return backend.ValidationResult{IsValid: true}
}

func (f *fakeBackend) QueryCount(_ context.Context, query string) (int64, error) {
	f.executedCounts = append(f.executedCounts, query)
	return f.count, nil
}

func (f *fakeBackend) QueryExceptions(_ context.Context, query string, _ int) (int64, []map[string]any, error) {
	f.executedExcepted = append(f.executedExcepted, query)
	return f.exceptions, nil, nil
}

func (f *fakeBackend) Close() error { return nil }

type scriptedHealer struct {
	calls  int
	result *rule.Rule
	err    error

	lastRequest Request
}

func (h *scriptedHealer) Heal(_ context.Context, req Request) (*rule.Rule, error) {
	h.calls++
	h.lastRequest = req
	return h.result, h.err
}

// terminationRule asserts on "employment_status", which fixture manifests
// do not carry; the ingested column is "emp_status".
func terminationRule(field string) *rule.Rule {
	return &rule.Rule{
		Governance: rule.Governance{
			ControlID:        "SOX-HR-002",
			Version:          "2.1.0",
			TestingFrequency: rule.FrequencyDaily,
		},
		Population: rule.Pipeline{BaseDataset: "hr_roster"},
		Assertions: []rule.Assertion{
			rule.ValueMatch{
				AssertionMeta: rule.AssertionMeta{AssertionID: "terminated-disabled"},
				Field:         field,
				Operator:      rule.OpNeq,
				Expected:      rule.String("TERMINATED"),
			},
		},
		Evidence: rule.EvidenceRequirements{
			RetentionYears:   7,
			ReviewerWorkflow: rule.WorkflowSignoff,
		},
	}
}

func rosterManifests() manifest.Set {
	return manifest.Set{
		"hr_roster": {
			DatasetAlias: "hr_roster",
			Path:         "/evidence/hr_roster.parquet",
			SHA256:       "9ac41b20",
			RowCount:     500,
			Columns:      []string{"employee_id", "emp_status"},
		},
	}
}

const binderDiagnostic = `Binder Error: Referenced column "employment_status" not found in FROM clause!`

func newProtocol(b backend.Backend, h Healer) *Protocol {
	eng := engine.New(b, engine.WithRunIDGenerator(engine.FixedGenerator{ID: "run-heal"}))
	return NewProtocol(eng, h)
}

func TestRunSkipsHealerWhenDryRunPasses(t *testing.T) {
	fake := &fakeBackend{count: 500, exceptions: 0}
	healer := &scriptedHealer{}

	v, err := newProtocol(fake, healer).Run(context.Background(), terminationRule("emp_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomePass, v.Outcome)
	assert.False(t, v.Healed)
	assert.Zero(t, healer.calls)
}

func TestRunHealsBindingFailureExactlyOnce(t *testing.T) {
	fake := &fakeBackend{
		failSubstr: "employment_status",
		diagnostic: binderDiagnostic,
		kind:       backend.KindBinding,
		count:      500,
		exceptions: 0,
	}
	healer := &scriptedHealer{result: terminationRule("emp_status")}

	v, err := newProtocol(fake, healer).Run(context.Background(), terminationRule("employment_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomePass, v.Outcome)
	assert.True(t, v.Healed)
	assert.Equal(t, 1, healer.calls)

	// The healer sees the verbatim diagnostic and the real column inventory.
	assert.Equal(t, binderDiagnostic, healer.lastRequest.Diagnostic)
	assert.Equal(t, []string{"employee_id", "emp_status"}, healer.lastRequest.AvailableColumns["hr_roster"])

	// Only the healed statement reached execution.
	require.Len(t, fake.executedExcepted, 1)
	assert.Contains(t, fake.executedExcepted[0], "emp_status")
	assert.NotContains(t, fake.executedExcepted[0], "employment_status")
}

func TestRunDoubleFailureIsTerminalError(t *testing.T) {
	fake := &fakeBackend{
		failSubstr: "employment_status",
		diagnostic: binderDiagnostic,
		kind:       backend.KindBinding,
	}
	// The healer hands back the same broken rule.
	healer := &scriptedHealer{result: terminationRule("employment_status")}

	v, err := newProtocol(fake, healer).Run(context.Background(), terminationRule("employment_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeError, v.Outcome)
	assert.Equal(t, engine.ErrCodeBinding, v.ErrorCode)
	assert.Contains(t, v.ErrorMessage, "self-healing failed for control SOX-HR-002")
	assert.Contains(t, v.ErrorMessage, "original error: "+binderDiagnostic)
	assert.Contains(t, v.ErrorMessage, "after heal: "+binderDiagnostic)

	// One attempt only, and nothing ever executed.
	assert.Equal(t, 1, healer.calls)
	assert.Empty(t, fake.executedCounts)
	assert.Empty(t, fake.executedExcepted)
}

func TestRunWithoutHealerBindingFailureIsTerminal(t *testing.T) {
	fake := &fakeBackend{
		failSubstr: "employment_status",
		diagnostic: binderDiagnostic,
		kind:       backend.KindBinding,
	}

	v, err := newProtocol(fake, nil).Run(context.Background(), terminationRule("employment_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeError, v.Outcome)
	assert.Equal(t, engine.ErrCodeBinding, v.ErrorCode)
	assert.Equal(t, binderDiagnostic, v.ErrorMessage)
}

func TestRunHealerFailureIsTerminal(t *testing.T) {
	fake := &fakeBackend{
		failSubstr: "employment_status",
		diagnostic: binderDiagnostic,
		kind:       backend.KindBinding,
	}
	healer := &scriptedHealer{err: errors.New("translation service unavailable")}

	v, err := newProtocol(fake, healer).Run(context.Background(), terminationRule("employment_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeError, v.Outcome)
	assert.Contains(t, v.ErrorMessage, "healer failed: translation service unavailable")
	assert.Equal(t, 1, healer.calls)
}

func TestRunSyntaxFailureNeverInvokesHealer(t *testing.T) {
	fake := &fakeBackend{
		failSubstr: "emp_status",
		diagnostic: `Parser Error: syntax error at or near "FORM"`,
		kind:       backend.KindSyntax,
	}
	healer := &scriptedHealer{}

	v, err := newProtocol(fake, healer).Run(context.Background(), terminationRule("emp_status"), rosterManifests())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeError, v.Outcome)
	assert.Equal(t, engine.ErrCodeExecution, v.ErrorCode)
	assert.Zero(t, healer.calls)
}

func TestRunRejectsMalformedRule(t *testing.T) {
	fake := &fakeBackend{}
	bad := terminationRule("emp_status")
	bad.Governance.ControlID = ""

	v, err := newProtocol(fake, &scriptedHealer{}).Run(context.Background(), bad, rosterManifests())
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, rule.IsSchemaViolation(err))
	assert.Empty(t, fake.dryRunQueries)
}
