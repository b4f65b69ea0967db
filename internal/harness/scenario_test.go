package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validScenarioYAML = `name: sample
description: a minimal valid scenario
rule_file: rules/sample.json
manifests:
  - dataset_alias: trades
    parquet_path: /evidence/trades.parquet
    sha256_hash: abc123
    row_count: 10
    columns: [trade_id, status]
backend:
  population_count: 10
expect:
  outcome: PASS
`

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenarioFile(t, validScenarioYAML)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", scenario.Name)
	assert.Equal(t, "rules/sample.json", scenario.RuleFile)
	require.Len(t, scenario.Manifests, 1)
	assert.Equal(t, "trades", scenario.Manifests[0].DatasetAlias)
	assert.Equal(t, int64(10), scenario.Backend.PopulationCount)
	assert.Equal(t, "PASS", scenario.Expect.Outcome)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	// "expects" instead of "expect"
	path := writeScenarioFile(t, `name: typo
description: typo in the expect key
rule_file: rules/sample.json
manifests:
  - dataset_alias: trades
    parquet_path: /evidence/trades.parquet
expects:
  outcome: PASS
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing name",
			yaml: `description: d
rule_file: r.json
manifests:
  - dataset_alias: trades
    parquet_path: /p.parquet
expect:
  outcome: PASS
`,
			wantErr: "name is required",
		},
		{
			name: "missing manifests",
			yaml: `name: s
description: d
rule_file: r.json
expect:
  outcome: PASS
`,
			wantErr: "manifests list is required",
		},
		{
			name: "manifest without path",
			yaml: `name: s
description: d
rule_file: r.json
manifests:
  - dataset_alias: trades
expect:
  outcome: PASS
`,
			wantErr: "parquet_path is required",
		},
		{
			name: "bad outcome",
			yaml: `name: s
description: d
rule_file: r.json
manifests:
  - dataset_alias: trades
    parquet_path: /p.parquet
expect:
  outcome: MAYBE
`,
			wantErr: "must be PASS, FAIL, or ERROR",
		},
		{
			name: "dry_run_fail_if without dry_run_error",
			yaml: `name: s
description: d
rule_file: r.json
manifests:
  - dataset_alias: trades
    parquet_path: /p.parquet
backend:
  dry_run_fail_if: broken_column
expect:
  outcome: ERROR
`,
			wantErr: "dry_run_error is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenarioFile(t, tt.yaml)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
