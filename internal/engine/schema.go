package engine

import (
	"sort"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// SchemaStatus classifies a drift check.
type SchemaStatus string

const (
	SchemaValid SchemaStatus = "VALID"
	SchemaDrift SchemaStatus = "SCHEMA_DRIFT_DETECTED"
)

// DatasetDrift reports the drift check for one dataset alias.
type DatasetDrift struct {
	DatasetAlias string
	Status       SchemaStatus

	// MissingColumns are bound fields absent from the dataset's manifest.
	MissingColumns []string

	// AvailableColumns is the manifest's column list, for healing context.
	AvailableColumns []string
}

// SchemaReport is the preflight drift check for a whole rule.
type SchemaReport struct {
	Status   SchemaStatus
	Datasets []DatasetDrift
}

// ValidateSchema checks every ontology binding against the columns its own
// dataset's manifest declares. Each binding is checked only against the
// dataset it names; the same column name may legitimately exist in one
// dataset and not another. A binding naming a dataset with no manifest is
// drift too: the rule references evidence that was never ingested.
//
// The check is advisory. Execution does not require it; callers run it to
// fail fast or to gather healing context before touching the backend.
func ValidateSchema(r *rule.Rule, manifests manifest.Set) SchemaReport {
	missing := make(map[string]map[string]bool)
	for _, b := range r.OntologyBindings {
		m, ok := manifests[b.DatasetAlias]
		if ok && columnExists(m.Columns, b.TechnicalField) {
			continue
		}
		if missing[b.DatasetAlias] == nil {
			missing[b.DatasetAlias] = make(map[string]bool)
		}
		missing[b.DatasetAlias][b.TechnicalField] = true
	}

	report := SchemaReport{Status: SchemaValid}
	for _, alias := range bindingAliases(r) {
		d := DatasetDrift{
			DatasetAlias:     alias,
			Status:           SchemaValid,
			AvailableColumns: manifests[alias].Columns,
		}
		if fields := missing[alias]; len(fields) > 0 {
			d.Status = SchemaDrift
			d.MissingColumns = sortedKeys(fields)
			report.Status = SchemaDrift
		}
		report.Datasets = append(report.Datasets, d)
	}
	return report
}

func bindingAliases(r *rule.Rule) []string {
	seen := make(map[string]bool)
	for _, b := range r.OntologyBindings {
		seen[b.DatasetAlias] = true
	}
	return sortedKeys(seen)
}

func columnExists(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
