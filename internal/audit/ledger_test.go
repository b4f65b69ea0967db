package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func sampleRule(version string) *rule.Rule {
	return &rule.Rule{
		Governance: rule.Governance{
			ControlID:        "SOX-TRD-001",
			Version:          version,
			OwnerRole:        "Trade Surveillance",
			TestingFrequency: rule.FrequencyDaily,
		},
		Population: rule.Pipeline{BaseDataset: "trades"},
		Assertions: []rule.Assertion{
			rule.ValueMatch{
				AssertionMeta: rule.AssertionMeta{AssertionID: "settled", MaterialityThresholdPercent: 5},
				Field:         "status",
				Operator:      rule.OpEq,
				Expected:      rule.String("SETTLED"),
			},
		},
		Evidence: rule.EvidenceRequirements{
			RetentionYears:   7,
			ReviewerWorkflow: rule.WorkflowSignoff,
		},
	}
}

func sampleVerdict(runID string, executedAt time.Time) *engine.Verdict {
	return &engine.Verdict{
		RunID:                       runID,
		ControlID:                   "SOX-TRD-001",
		Outcome:                     engine.OutcomeFail,
		PopulationSize:              200,
		ExceptionCount:              12,
		ExceptionRatePercent:        6.0,
		MaterialityThresholdPercent: 5.0,
		CompiledSQL:                 "WITH base AS (SELECT 1)\nSELECT * FROM base",
		EvidenceHashes:              map[string]string{"trades": "1f6a8db35c0d"},
		ExceptionsSample:            []map[string]any{{"trade_id": "T-9", "status": "PENDING"}},
		ExecutedAt:                  executedAt,
	}
}

func TestSaveAndGetRule(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.SaveRule(ctx, sampleRule("1.0.0")))

	got, err := l.GetRule(ctx, "SOX-TRD-001", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "SOX-TRD-001", got.Governance.ControlID)
	assert.Equal(t, "1.0.0", got.Governance.Version)
	require.Len(t, got.Assertions, 1)
	vm, ok := got.Assertions[0].(rule.ValueMatch)
	require.True(t, ok)
	assert.Equal(t, "status", vm.Field)
}

func TestSaveRuleVersionIsImmutable(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first := sampleRule("1.0.0")
	require.NoError(t, l.SaveRule(ctx, first))

	// Same version with different logic must not overwrite the first write.
	second := sampleRule("1.0.0")
	second.Population.BaseDataset = "positions"
	require.NoError(t, l.SaveRule(ctx, second))

	got, err := l.GetRule(ctx, "SOX-TRD-001", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "trades", got.Population.BaseDataset)
}

func TestSaveAndGetVerdict(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	executedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.SaveVerdict(ctx, sampleVerdict("run-1", executedAt)))

	got, err := l.GetVerdict(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFail, got.Outcome)
	assert.Equal(t, int64(200), got.PopulationSize)
	assert.Equal(t, int64(12), got.ExceptionCount)
	assert.Equal(t, 6.0, got.ExceptionRatePercent)
	assert.Equal(t, map[string]string{"trades": "1f6a8db35c0d"}, got.EvidenceHashes)
	require.Len(t, got.ExceptionsSample, 1)
	assert.Equal(t, "T-9", got.ExceptionsSample[0]["trade_id"])
	assert.True(t, got.ExecutedAt.Equal(executedAt))
	assert.Empty(t, got.ErrorCode)
	assert.False(t, got.Healed)
}

func TestSaveVerdictErrorOutcome(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	v := sampleVerdict("run-err", time.Now().UTC())
	v.Outcome = engine.OutcomeError
	v.ErrorCode = engine.ErrCodeBinding
	v.ErrorMessage = `Binder Error: Referenced column "status" not found in FROM clause!`
	v.Healed = true
	require.NoError(t, l.SaveVerdict(ctx, v))

	got, err := l.GetVerdict(ctx, "run-err")
	require.NoError(t, err)
	assert.Equal(t, engine.ErrCodeBinding, got.ErrorCode)
	assert.Equal(t, v.ErrorMessage, got.ErrorMessage)
	assert.True(t, got.Healed)
}

func TestSaveVerdictIsIdempotent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	executedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.SaveVerdict(ctx, sampleVerdict("run-1", executedAt)))

	// A retried write with diverging fields is silently ignored.
	retry := sampleVerdict("run-1", executedAt)
	retry.Outcome = engine.OutcomePass
	require.NoError(t, l.SaveVerdict(ctx, retry))

	got, err := l.GetVerdict(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFail, got.Outcome)
}

func TestListVerdictsMostRecentFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.SaveVerdict(ctx, sampleVerdict("run-1", base)))
	require.NoError(t, l.SaveVerdict(ctx, sampleVerdict("run-2", base.Add(24*time.Hour))))
	require.NoError(t, l.SaveVerdict(ctx, sampleVerdict("run-3", base.Add(48*time.Hour))))

	got, err := l.ListVerdicts(ctx, "SOX-TRD-001")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "run-3", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
	assert.Equal(t, "run-1", got[2].RunID)
}

func TestGetMissingRecordsReturnNotFound(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.GetVerdict(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.GetRule(ctx, "SOX-TRD-001", "9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	l1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l1.SaveRule(context.Background(), sampleRule("1.0.0")))
	require.NoError(t, l1.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	got, err := l2.GetRule(context.Background(), "SOX-TRD-001", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Governance.Version)
}
