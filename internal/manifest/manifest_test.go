package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifestJSON = `[
  {"dataset_alias": "trades", "parquet_path": "/data/trades.parquet", "sha256_hash": "abc123", "row_count": 10000, "columns": ["trade_id", "amount", "status"]},
  {"dataset_alias": "roster", "parquet_path": "/data/roster.parquet", "sha256_hash": "def456", "row_count": 250, "columns": ["employee_id", "employment_status"]}
]`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sampleManifestJSON))
	require.NoError(t, err)
	require.Len(t, set, 2)

	assert.Equal(t, []string{"roster", "trades"}, set.Aliases())
	assert.Equal(t, int64(10000), set["trades"].RowCount)
	assert.Equal(t, []string{"employee_id", "employment_status"}, set["roster"].Columns)
	assert.Equal(t, map[string]string{"trades": "abc123", "roster": "def456"}, set.Hashes())

	columns := set.ColumnSets()
	assert.Equal(t, []string{"trade_id", "amount", "status"}, columns["trades"])
}

func TestParse_DuplicateAlias(t *testing.T) {
	payload := `[
	  {"dataset_alias": "trades", "parquet_path": "a.parquet", "sha256_hash": "x", "columns": []},
	  {"dataset_alias": "trades", "parquet_path": "b.parquet", "sha256_hash": "y", "columns": []}
	]`
	_, err := Parse([]byte(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate dataset_alias "trades"`)
}

func TestParse_MissingAlias(t *testing.T) {
	_, err := Parse([]byte(`[{"parquet_path": "a.parquet"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing dataset_alias")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifests.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifestJSON), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set, 2)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.parquet")
	content := []byte("columnar bytes")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum := sha256.Sum256(content)
	m := Manifest{DatasetAlias: "trades", Path: path, SHA256: hex.EncodeToString(sum[:])}
	require.NoError(t, m.Verify())

	m.SHA256 = "0000"
	err := m.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}
