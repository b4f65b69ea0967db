package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGoldenSQL compares a scenario's compiled statements against a golden
// file at testdata/golden/{scenario.Name}.golden. The snapshot carries the
// exception statement and the population count statement; compiler
// determinism makes byte comparison the right check.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGoldenSQL(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	snapshot := result.Compiled.ExceptionSQL +
		"\n\n-- population count\n" +
		result.Compiled.PopulationCountSQL + "\n"

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(snapshot))
}
