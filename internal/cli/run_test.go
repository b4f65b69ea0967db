package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrinivasPT/control-testing/internal/audit"
	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/engine"
)

// stubBackend scripts query results for run command tests.
type stubBackend struct {
	count      int64
	exceptions int64
	sample     []map[string]any
}

func (s *stubBackend) QueryCount(context.Context, string) (int64, error) {
	return s.count, nil
}

func (s *stubBackend) QueryExceptions(context.Context, string, int) (int64, []map[string]any, error) {
	return s.exceptions, s.sample, nil
}

func (s *stubBackend) DryRun(context.Context, string) backend.ValidationResult {
	return backend.ValidationResult{IsValid: true}
}

func (s *stubBackend) Close() error { return nil }

func withStubBackend(t *testing.T, stub *stubBackend) {
	t.Helper()
	orig := openBackend
	openBackend = func() (backend.Backend, error) { return stub, nil }
	t.Cleanup(func() { openBackend = orig })
}

func TestRunCommandPass(t *testing.T) {
	withStubBackend(t, &stubBackend{count: 200, exceptions: 0})

	out, _, err := executeCommand(t, "run", "testdata/settlement_rule.json", "testdata/manifests.json")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ PASS SOX-TRD-001")
	assert.Contains(t, out, "population: 200")
}

func TestRunCommandFailExitsNonZero(t *testing.T) {
	withStubBackend(t, &stubBackend{
		count:      200,
		exceptions: 12,
		sample:     []map[string]any{{"trade_id": "T-9"}},
	})

	out, _, err := executeCommand(t, "run", "testdata/settlement_rule.json", "testdata/manifests.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ FAIL SOX-TRD-001")
	assert.Contains(t, out, "exceptions: 12 (6.00%, threshold 5.00%)")
}

func TestRunCommandJSON(t *testing.T) {
	withStubBackend(t, &stubBackend{count: 200, exceptions: 2})

	out, _, err := executeCommand(t, "--format", "json", "run", "testdata/settlement_rule.json", "testdata/manifests.json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "PASS", resp.Data.Outcome)
	assert.Equal(t, int64(200), resp.Data.PopulationSize)
	assert.Equal(t, 1.0, resp.Data.ExceptionRatePercent)
	assert.Equal(t, "1f6a8db35c0d9a44", resp.Data.EvidenceHashes["trades"])
	assert.NotEmpty(t, resp.Data.RunID)
}

func TestRunCommandZeroPopulationIsError(t *testing.T) {
	withStubBackend(t, &stubBackend{count: 0})

	out, _, err := executeCommand(t, "run", "testdata/settlement_rule.json", "testdata/manifests.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "! ERROR SOX-TRD-001")
	assert.Contains(t, out, "ZERO_POPULATION")
}

func TestRunCommandPersistsVerdict(t *testing.T) {
	withStubBackend(t, &stubBackend{count: 200, exceptions: 12})
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	_, _, err := executeCommand(t, "run", "testdata/settlement_rule.json", "testdata/manifests.json", "--db", dbPath)
	require.Error(t, err) // FAIL verdict exits 1

	ledger, err := audit.Open(dbPath)
	require.NoError(t, err)
	defer ledger.Close()

	verdicts, err := ledger.ListVerdicts(context.Background(), "SOX-TRD-001")
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, engine.OutcomeFail, verdicts[0].Outcome)
	assert.Equal(t, int64(12), verdicts[0].ExceptionCount)

	r, err := ledger.GetRule(context.Background(), "SOX-TRD-001", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "trades", r.Population.BaseDataset)
}
