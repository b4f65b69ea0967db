package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommandClean(t *testing.T) {
	out, _, err := executeCommand(t, "validate", "testdata/settlement_rule.json", "testdata/manifests.json")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Control SOX-TRD-001 is valid")
}

func TestValidateCommandDetectsDrift(t *testing.T) {
	out, _, err := executeCommand(t, "validate", "testdata/settlement_rule.json", "testdata/drift_manifests.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "schema drift detected")
	assert.Contains(t, out, "missing [status]")
}

func TestValidateCommandDriftJSON(t *testing.T) {
	out, _, err := executeCommand(t, "--format", "json", "validate", "testdata/settlement_rule.json", "testdata/drift_manifests.json")
	require.Error(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ValidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "SCHEMA_DRIFT_DETECTED", resp.Data.Status)
	require.Len(t, resp.Data.Datasets, 1)
	assert.Equal(t, []string{"status"}, resp.Data.Datasets[0].MissingColumns)
	assert.Contains(t, resp.Data.Datasets[0].AvailableColumns, "settlement_state")
}
