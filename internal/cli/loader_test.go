package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrinivasPT/control-testing/internal/rule"
)

func TestLoadRule(t *testing.T) {
	r, err := LoadRule("testdata/settlement_rule.json")
	require.NoError(t, err)

	assert.Equal(t, "SOX-TRD-001", r.Governance.ControlID)
	assert.Equal(t, rule.FrequencyDaily, r.Governance.TestingFrequency)
	require.Len(t, r.Population.Steps, 1)
	require.Len(t, r.Assertions, 1)

	vm, ok := r.Assertions[0].(rule.ValueMatch)
	require.True(t, ok)
	assert.Equal(t, "status", vm.Field)
	assert.Equal(t, rule.String("SETTLED"), vm.Expected)
	// Folding defaults on when the wire form omits it.
	assert.False(t, vm.CaseSensitive)
}

func TestLoadRuleUnknownAssertionType(t *testing.T) {
	_, err := LoadRule("testdata/bad_rule.json")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeRuleSchema, loadErr.Code)
}

func TestLoadRuleMissingFile(t *testing.T) {
	_, err := LoadRule("testdata/does_not_exist.json")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadManifests(t *testing.T) {
	set, err := LoadManifests("testdata/manifests.json")
	require.NoError(t, err)

	require.Contains(t, set, "trades")
	assert.Equal(t, "/evidence/trades.parquet", set["trades"].Path)
	assert.Equal(t, []string{"trade_id", "status", "is_active", "settle_date"}, set["trades"].Columns)
}

func TestLoadManifestsMissingFile(t *testing.T) {
	_, err := LoadManifests("testdata/does_not_exist.json")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}
