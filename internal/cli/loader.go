package cli

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

//go:embed rule_schema.cue
var ruleSchemaCUE string

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeRuleSchema  = "E003" // Rule failed schema validation
	ErrCodeRuleDecode  = "E004" // Rule JSON decode failed
	ErrCodeManifest    = "E005" // Manifest load failed
	ErrCodeCompile     = "E006" // Compilation failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBackend     = "E008" // Backend session error
	ErrCodeLedger      = "E009" // Audit ledger error
	ErrCodeEvidence    = "E010" // Evidence hash mismatch
)

// LoadError represents an error that occurred while loading inputs.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRule reads a rule DSL JSON file, validates it against the embedded
// CUE schema, and decodes it into the typed form. The returned rule has
// passed full construction validation.
func LoadRule(path string) (*rule.Rule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rule file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading rule file: %v", err)}
	}

	if err := validateRuleJSON(path, data); err != nil {
		return nil, &LoadError{Code: ErrCodeRuleSchema, Message: err.Error()}
	}

	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &LoadError{Code: ErrCodeRuleDecode, Message: err.Error()}
	}
	if err := r.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeRuleSchema, Message: err.Error()}
	}
	return &r, nil
}

// LoadManifests reads an evidence manifest file (JSON array form).
func LoadManifests(path string) (manifest.Set, error) {
	set, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeManifest, Message: err.Error()}
	}
	return set, nil
}

// validateRuleJSON unifies the rule document with the embedded CUE schema.
// Structural problems (unknown discriminators, out-of-range thresholds,
// wrong operator families) surface here with field-level positions.
func validateRuleJSON(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(ruleSchemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling rule schema: %w", err)
	}
	ruleDef := schema.LookupPath(cue.ParsePath("#Rule"))
	if err := ruleDef.Err(); err != nil {
		return fmt.Errorf("resolving rule schema: %w", err)
	}

	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parsing rule JSON: %w", err)
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building rule document: %w", err)
	}

	return ruleDef.Unify(doc).Validate(cue.Final(), cue.Concrete(true))
}
