package sqlgen

import (
	"fmt"
	"strings"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// CompiledQuery is the ephemeral result of lowering one rule against one
// manifest set: the stage chain plus the two final statements. It is not
// persisted here; the audit collaborator stores the SQL text alongside the
// verdict.
type CompiledQuery struct {
	ControlID string

	// Stages is the ordered CTE chain; FinalStage names its last element.
	Stages     []Stage
	FinalStage string

	// PopulationPredicates are the AND-combined scope conditions.
	PopulationPredicates []string

	// ExceptionSQL selects exactly the exception rows (or groups).
	ExceptionSQL string

	// PopulationCountSQL counts the population: same stage chain, same
	// population predicates, no assertion predicates.
	PopulationCountSQL string

	// Grouped is true when the exception statement aggregates; its result
	// rows are then groups, not evidence rows.
	Grouped bool

	// GroupByFields is the deduplicated group-key union for grouped output.
	GroupByFields []string
}

// Compile lowers a validated rule into its exception and population-count
// statements. Compile is stateless: it builds a fresh stage chain on every
// call and mutates neither argument, so repeated compilation of the same
// inputs is byte-identical.
//
// A rule mixing row-level and aggregation assertions cannot be expressed as
// one statement (WHERE vs HAVING semantics) and is rejected; callers wanting
// both must compile two single-kind rules and union the exception sets.
func Compile(r *rule.Rule, manifests manifest.Set) (*CompiledQuery, error) {
	population, err := lowerPopulation(r, manifests)
	if err != nil {
		return nil, err
	}

	assertions, err := lowerAssertions(r)
	if err != nil {
		return nil, err
	}
	if len(assertions.rowExceptions) > 0 && assertions.grouped() {
		return nil, invariant("rule %s mixes row-level and aggregation assertions in one query; compile them separately",
			r.Governance.ControlID)
	}

	cq := &CompiledQuery{
		ControlID:            r.Governance.ControlID,
		Stages:               population.stages,
		FinalStage:           population.finalStage,
		PopulationPredicates: population.predicates,
		Grouped:              assertions.grouped(),
		GroupByFields:        assertions.groupBy,
	}

	with := buildWithClause(population.stages)
	if cq.Grouped {
		cq.ExceptionSQL = buildGroupedExceptionSQL(with, population, assertions)
	} else {
		cq.ExceptionSQL = buildRowExceptionSQL(with, population, assertions, r.Population.Sampling)
	}
	cq.PopulationCountSQL = buildPopulationCountSQL(with, population)
	return cq, nil
}

func buildWithClause(stages []Stage) string {
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, stage.Name+" AS ("+stage.Body+")")
	}
	return "WITH " + strings.Join(parts, ",\n")
}

func populationClause(predicates []string) string {
	if len(predicates) == 0 {
		return "1=1"
	}
	return strings.Join(predicates, " AND ")
}

// buildRowExceptionSQL emits the row-level exception statement: rows must be
// in scope (AND) and must break at least one assertion (OR).
func buildRowExceptionSQL(with string, pop *populationPlan, plan *assertionPlan, sampling *rule.Sampling) string {
	popClause := populationClause(pop.predicates)

	var where string
	if len(plan.rowExceptions) > 0 {
		where = fmt.Sprintf("(%s)\n  AND (%s)", popClause, strings.Join(plan.rowExceptions, " OR "))
	} else {
		where = popClause
	}

	return fmt.Sprintf("%s\nSELECT *\nFROM %s%s\nWHERE %s",
		with, pop.finalStage, samplingClause(sampling), where)
}

// buildGroupedExceptionSQL emits the aggregation form: population predicates
// filter rows before grouping, and any violated aggregate (OR across HAVING
// conditions) makes the group an exception. The projection carries the group
// keys, an exception_count, and a representative metric sum.
func buildGroupedExceptionSQL(with string, pop *populationPlan, plan *assertionPlan) string {
	groupCols := strings.Join(plan.groupBy, ", ")

	var sb strings.Builder
	sb.WriteString(with)
	sb.WriteString("\nSELECT ")
	sb.WriteString(groupCols)
	sb.WriteString(",\n       COUNT(*) AS exception_count,\n       SUM(")
	sb.WriteString(plan.metricField)
	sb.WriteString(") AS total_amount\nFROM ")
	sb.WriteString(pop.finalStage)
	if len(pop.predicates) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(populationClause(pop.predicates))
	}
	sb.WriteString("\nGROUP BY ")
	sb.WriteString(groupCols)
	sb.WriteString("\nHAVING ")
	sb.WriteString(strings.Join(plan.having, " OR "))
	return sb.String()
}

// buildPopulationCountSQL counts rows over the full stage chain with the
// population predicates only. Assertion predicates never appear here: the
// population is what gets judged, not what failed.
func buildPopulationCountSQL(with string, pop *populationPlan) string {
	sql := fmt.Sprintf("%s\nSELECT COUNT(*)\nFROM %s", with, pop.finalStage)
	if len(pop.predicates) > 0 {
		sql += "\nWHERE " + populationClause(pop.predicates)
	}
	return sql
}

// samplingClause renders the reservoir sampling suffix for the final stage
// scan. Empty unless sampling is enabled.
func samplingClause(s *rule.Sampling) string {
	if s == nil || !s.Enabled {
		return ""
	}

	seed := ""
	if s.RandomSeed != nil {
		seed = fmt.Sprintf(" REPEATABLE (%d)", *s.RandomSeed)
	}
	if s.SampleSize != nil {
		return fmt.Sprintf(" TABLESAMPLE RESERVOIR(%d ROWS)%s", *s.SampleSize, seed)
	}
	if s.SamplePercentage != nil {
		return fmt.Sprintf(" TABLESAMPLE RESERVOIR(%d%%)%s", int(*s.SamplePercentage*100), seed)
	}
	return ""
}
