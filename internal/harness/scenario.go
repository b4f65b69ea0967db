// Package harness provides a conformance testing framework for the control
// testing engine. Scenarios are YAML documents pairing a rule file with
// scripted backend behavior and an expected verdict, so end-to-end verdict
// semantics (compile, dry-run, heal, execute, classify) can be validated
// without a live query engine. Golden files snapshot the compiled SQL; the
// compiler's determinism makes byte comparison meaningful.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RuleFile is the rule DSL JSON path, relative to the scenario file.
	RuleFile string `yaml:"rule_file"`

	// HealedRuleFile, when set, scripts the healer: a binding failure hands
	// back this rule. When empty, no healer is wired and binding failures
	// are terminal.
	HealedRuleFile string `yaml:"healed_rule_file,omitempty"`

	// Manifests declares the evidence inventory the scenario runs against.
	Manifests []ManifestEntry `yaml:"manifests"`

	// Backend scripts query results and failures.
	Backend BackendScript `yaml:"backend"`

	// Expect is the expected verdict.
	Expect Expectation `yaml:"expect"`
}

// ManifestEntry is the YAML form of one evidence manifest.
type ManifestEntry struct {
	DatasetAlias string   `yaml:"dataset_alias"`
	Path         string   `yaml:"parquet_path"`
	SHA256       string   `yaml:"sha256_hash"`
	RowCount     int64    `yaml:"row_count"`
	Columns      []string `yaml:"columns"`
}

// BackendScript scripts the backend's responses for one scenario.
type BackendScript struct {
	// PopulationCount is returned by the population count query.
	PopulationCount int64 `yaml:"population_count"`

	// CountError, when set, fails the population count query instead.
	CountError string `yaml:"count_error,omitempty"`

	// ExceptionCount and ExceptionRows are returned by the exception query.
	ExceptionCount int64            `yaml:"exception_count"`
	ExceptionRows  []map[string]any `yaml:"exception_rows,omitempty"`

	// ExceptionError, when set, fails the exception query instead.
	ExceptionError string `yaml:"exception_error,omitempty"`

	// DryRunFailIf fails dry-run validation for any statement containing
	// this substring, reporting DryRunError verbatim. The error kind is
	// derived from the diagnostic text, as it is in production.
	DryRunFailIf string `yaml:"dry_run_fail_if,omitempty"`
	DryRunError  string `yaml:"dry_run_error,omitempty"`
}

// Expectation is the expected verdict for a scenario.
type Expectation struct {
	// Outcome is PASS, FAIL, or ERROR.
	Outcome string `yaml:"outcome"`

	PopulationSize       *int64   `yaml:"population_size,omitempty"`
	ExceptionCount       *int64   `yaml:"exception_count,omitempty"`
	ExceptionRatePercent *float64 `yaml:"exception_rate_percent,omitempty"`

	// ErrorCode and ErrorContains apply to ERROR outcomes.
	ErrorCode     string   `yaml:"error_code,omitempty"`
	ErrorContains []string `yaml:"error_contains,omitempty"`

	// Healed, when set, asserts whether the healing protocol revised the
	// rule before the verdict.
	Healed *bool `yaml:"healed,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.RuleFile == "" {
		return fmt.Errorf("rule_file is required")
	}
	if len(s.Manifests) == 0 {
		return fmt.Errorf("manifests list is required and must be non-empty")
	}
	for i, m := range s.Manifests {
		if m.DatasetAlias == "" {
			return fmt.Errorf("manifests[%d]: dataset_alias is required", i)
		}
		if m.Path == "" {
			return fmt.Errorf("manifests[%d]: parquet_path is required", i)
		}
	}

	switch s.Expect.Outcome {
	case "PASS", "FAIL", "ERROR":
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome must be PASS, FAIL, or ERROR, got %q", s.Expect.Outcome)
	}

	if s.Backend.DryRunFailIf != "" && s.Backend.DryRunError == "" {
		return fmt.Errorf("backend.dry_run_error is required with dry_run_fail_if")
	}
	return nil
}
