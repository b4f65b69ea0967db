package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

func TestValidateSchemaAllBindingsPresent(t *testing.T) {
	report := ValidateSchema(settlementRule(0), tradeManifests())

	assert.Equal(t, SchemaValid, report.Status)
	assert.Len(t, report.Datasets, 1)
	assert.Equal(t, "trades", report.Datasets[0].DatasetAlias)
	assert.Equal(t, SchemaValid, report.Datasets[0].Status)
	assert.Empty(t, report.Datasets[0].MissingColumns)
}

func TestValidateSchemaDetectsRenamedColumn(t *testing.T) {
	r := settlementRule(0)
	r.OntologyBindings = append(r.OntologyBindings, rule.OntologyBinding{
		BusinessTerm:   "Employment Status",
		DatasetAlias:   "trades",
		TechnicalField: "employment_status",
		DataType:       rule.TypeString,
	})

	report := ValidateSchema(r, tradeManifests())

	assert.Equal(t, SchemaDrift, report.Status)
	assert.Equal(t, []string{"employment_status"}, report.Datasets[0].MissingColumns)
	assert.Equal(t, []string{"trade_id", "status", "settle_date"}, report.Datasets[0].AvailableColumns)
}

func TestValidateSchemaChecksBindingAgainstItsOwnDataset(t *testing.T) {
	// "status" exists in trades but not in hr_roster. The hr_roster binding
	// must be drift even though another dataset has the column.
	r := settlementRule(0)
	r.OntologyBindings = append(r.OntologyBindings, rule.OntologyBinding{
		BusinessTerm:   "Roster Status",
		DatasetAlias:   "hr_roster",
		TechnicalField: "status",
		DataType:       rule.TypeString,
	})
	manifests := tradeManifests()
	manifests["hr_roster"] = manifest.Manifest{
		DatasetAlias: "hr_roster",
		Columns:      []string{"employee_id", "employment_status"},
	}

	report := ValidateSchema(r, manifests)

	assert.Equal(t, SchemaDrift, report.Status)
	assert.Len(t, report.Datasets, 2)
	assert.Equal(t, "hr_roster", report.Datasets[0].DatasetAlias)
	assert.Equal(t, SchemaDrift, report.Datasets[0].Status)
	assert.Equal(t, []string{"status"}, report.Datasets[0].MissingColumns)
	assert.Equal(t, SchemaValid, report.Datasets[1].Status)
}

func TestValidateSchemaMissingManifestIsDrift(t *testing.T) {
	r := settlementRule(0)
	r.OntologyBindings = []rule.OntologyBinding{
		{BusinessTerm: "Approver", DatasetAlias: "approvals", TechnicalField: "approver_id", DataType: rule.TypeString},
	}

	report := ValidateSchema(r, tradeManifests())

	assert.Equal(t, SchemaDrift, report.Status)
	assert.Equal(t, "approvals", report.Datasets[0].DatasetAlias)
	assert.Equal(t, []string{"approver_id"}, report.Datasets[0].MissingColumns)
	assert.Empty(t, report.Datasets[0].AvailableColumns)
}

func TestValidateSchemaNoBindings(t *testing.T) {
	r := settlementRule(0)
	r.OntologyBindings = nil

	report := ValidateSchema(r, tradeManifests())
	assert.Equal(t, SchemaValid, report.Status)
	assert.Empty(t, report.Datasets)
}
