package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/healing"
	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
	"github.com/SrinivasPT/control-testing/internal/sqlgen"
)

// Result is the outcome of one scenario execution.
type Result struct {
	// Verdict is the verdict the protocol produced.
	Verdict *engine.Verdict

	// Compiled is the original rule's compiled form, for SQL snapshots.
	Compiled *sqlgen.CompiledQuery

	// HealerCalls counts how many times the scripted healer was invoked.
	HealerCalls int

	// Failures lists expectation mismatches; empty means the scenario
	// passed.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// scriptedBackend implements backend.Backend from a BackendScript.
type scriptedBackend struct {
	script BackendScript
}

func (b *scriptedBackend) QueryCount(context.Context, string) (int64, error) {
	if b.script.CountError != "" {
		return 0, errors.New(b.script.CountError)
	}
	return b.script.PopulationCount, nil
}

func (b *scriptedBackend) QueryExceptions(_ context.Context, _ string, sampleLimit int) (int64, []map[string]any, error) {
	if b.script.ExceptionError != "" {
		return 0, nil, errors.New(b.script.ExceptionError)
	}
	rows := b.script.ExceptionRows
	if len(rows) > sampleLimit {
		rows = rows[:sampleLimit]
	}
	return b.script.ExceptionCount, rows, nil
}

func (b *scriptedBackend) DryRun(_ context.Context, query string) backend.ValidationResult {
	if b.script.DryRunFailIf != "" && strings.Contains(query, b.script.DryRunFailIf) {
		return backend.ValidationResult{
			IsValid: false,
			Kind:    backend.Classify(b.script.DryRunError),
			Message: b.script.DryRunError,
		}
	}
	return backend.ValidationResult{IsValid: true}
}

func (b *scriptedBackend) Close() error { return nil }

// scriptedHealer hands back a fixed healed rule.
type scriptedHealer struct {
	healed *rule.Rule
	calls  int
}

func (h *scriptedHealer) Heal(context.Context, healing.Request) (*rule.Rule, error) {
	h.calls++
	return h.healed, nil
}

// Run executes a scenario. Paths inside the scenario resolve relative to
// baseDir (normally the scenario file's directory). The run is fully
// deterministic: fixed run ID, fixed clock, scripted backend.
func Run(scenario *Scenario, baseDir string) (*Result, error) {
	r, err := loadRuleFile(filepath.Join(baseDir, scenario.RuleFile))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	manifests := make(manifest.Set, len(scenario.Manifests))
	for _, m := range scenario.Manifests {
		manifests[m.DatasetAlias] = manifest.Manifest{
			DatasetAlias: m.DatasetAlias,
			Path:         m.Path,
			SHA256:       m.SHA256,
			RowCount:     m.RowCount,
			Columns:      m.Columns,
		}
	}

	compiled, err := sqlgen.Compile(r, manifests)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: compile: %w", scenario.Name, err)
	}

	sb := &scriptedBackend{script: scenario.Backend}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	eng := engine.New(sb,
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(engine.FixedGenerator{ID: "run-" + scenario.Name}),
		engine.WithClock(func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }),
	)

	var healer *scriptedHealer
	var protocol *healing.Protocol
	if scenario.HealedRuleFile != "" {
		healed, err := loadRuleFile(filepath.Join(baseDir, scenario.HealedRuleFile))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		healer = &scriptedHealer{healed: healed}
		protocol = healing.NewProtocol(eng, healer, healing.WithLogger(logger))
	} else {
		protocol = healing.NewProtocol(eng, nil, healing.WithLogger(logger))
	}

	verdict, err := protocol.Run(context.Background(), r, manifests)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: run: %w", scenario.Name, err)
	}

	result := &Result{Verdict: verdict, Compiled: compiled}
	if healer != nil {
		result.HealerCalls = healer.calls
	}
	result.Failures = evaluate(scenario, result)
	return result, nil
}

func loadRuleFile(path string) (*rule.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode rule file %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return &r, nil
}

// evaluate compares the verdict against the scenario's expectations.
func evaluate(scenario *Scenario, result *Result) []string {
	var failures []string
	v := result.Verdict
	expect := scenario.Expect

	if string(v.Outcome) != expect.Outcome {
		failures = append(failures, fmt.Sprintf("outcome: want %s, got %s", expect.Outcome, v.Outcome))
	}
	if expect.PopulationSize != nil && v.PopulationSize != *expect.PopulationSize {
		failures = append(failures, fmt.Sprintf("population_size: want %d, got %d", *expect.PopulationSize, v.PopulationSize))
	}
	if expect.ExceptionCount != nil && v.ExceptionCount != *expect.ExceptionCount {
		failures = append(failures, fmt.Sprintf("exception_count: want %d, got %d", *expect.ExceptionCount, v.ExceptionCount))
	}
	if expect.ExceptionRatePercent != nil && v.ExceptionRatePercent != *expect.ExceptionRatePercent {
		failures = append(failures, fmt.Sprintf("exception_rate_percent: want %v, got %v", *expect.ExceptionRatePercent, v.ExceptionRatePercent))
	}
	if expect.ErrorCode != "" && string(v.ErrorCode) != expect.ErrorCode {
		failures = append(failures, fmt.Sprintf("error_code: want %s, got %s", expect.ErrorCode, v.ErrorCode))
	}
	for _, substr := range expect.ErrorContains {
		if !strings.Contains(v.ErrorMessage, substr) {
			failures = append(failures, fmt.Sprintf("error_message: %q not found in %q", substr, v.ErrorMessage))
		}
	}
	if expect.Healed != nil && v.Healed != *expect.Healed {
		failures = append(failures, fmt.Sprintf("healed: want %v, got %v", *expect.Healed, v.Healed))
	}
	return failures
}
