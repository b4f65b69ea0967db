package sqlgen

import (
	"fmt"
	"strings"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// Stage is a named intermediate result set in the population chain.
// Body is the SELECT inside the CTE parentheses.
type Stage struct {
	Name string
	Body string
}

// populationPlan is the lowered population pipeline: the CTE chain, the name
// of the final stage, and the AND-combined scope predicates.
type populationPlan struct {
	stages     []Stage
	finalStage string
	predicates []string
}

// lowerPopulation builds the stage chain. Stage 0 reads the base dataset
// verbatim. Filters never introduce stages; they accumulate into the
// predicate list applied once against the final stage. Each JoinLeft
// derives a new stage from the immediately preceding stage - never from
// stage 0 - and becomes the current stage for subsequent steps.
func lowerPopulation(r *rule.Rule, manifests manifest.Set) (*populationPlan, error) {
	base, ok := manifests[r.Population.BaseDataset]
	if !ok {
		return nil, invariant("base dataset %q absent from manifest set", r.Population.BaseDataset)
	}

	plan := &populationPlan{
		stages: []Stage{{
			Name: "base",
			Body: "SELECT * FROM " + readSource(base.Path),
		}},
		finalStage: "base",
	}

	for _, step := range r.Population.Steps {
		switch action := step.Action.(type) {
		case rule.FilterComparison:
			pred, err := compileFilterComparison(action)
			if err != nil {
				return nil, err
			}
			plan.predicates = append(plan.predicates, pred)

		case rule.FilterInList:
			pred, err := compileFilterInList(action)
			if err != nil {
				return nil, err
			}
			plan.predicates = append(plan.predicates, pred)

		case rule.FilterIsNull:
			plan.predicates = append(plan.predicates, compileFilterIsNull(action))

		case rule.JoinLeft:
			stage, err := lowerJoin(step.StepID, action, plan.finalStage, manifests)
			if err != nil {
				return nil, err
			}
			plan.stages = append(plan.stages, stage)
			plan.finalStage = stage.Name

		default:
			return nil, invariant("step %q: unknown action type %T", step.StepID, step.Action)
		}
	}
	return plan, nil
}

// lowerJoin derives a joined stage from the current stage. The right join
// keys are excluded from the projection so both sides sharing a key name
// can never produce an ambiguous-column error downstream.
func lowerJoin(stepID string, action rule.JoinLeft, currentStage string, manifests manifest.Set) (Stage, error) {
	right, ok := manifests[action.RightDataset]
	if !ok {
		return Stage{}, invariant("join %q: right dataset %q absent from manifest set", stepID, action.RightDataset)
	}
	if len(action.LeftKeys) == 0 || len(action.LeftKeys) != len(action.RightKeys) {
		return Stage{}, invariant("join %q: key list length mismatch (%d left, %d right)",
			stepID, len(action.LeftKeys), len(action.RightKeys))
	}

	conditions := make([]string, 0, len(action.LeftKeys))
	for i, leftKey := range action.LeftKeys {
		conditions = append(conditions, fmt.Sprintf("%s.%s = right_tbl.%s",
			currentStage, stripQualifier(leftKey), stripQualifier(action.RightKeys[i])))
	}

	excluded := make([]string, 0, len(action.RightKeys))
	for _, key := range action.RightKeys {
		excluded = append(excluded, stripQualifier(key))
	}

	body := fmt.Sprintf(
		"\n    SELECT %s.*,\n           right_tbl.* EXCLUDE (%s)\n    FROM %s\n    LEFT JOIN %s AS right_tbl\n    ON %s\n",
		currentStage,
		strings.Join(excluded, ", "),
		currentStage,
		readSource(right.Path),
		strings.Join(conditions, " AND "),
	)
	return Stage{Name: stepID, Body: body}, nil
}

func compileFilterComparison(action rule.FilterComparison) (string, error) {
	op, err := sqlOp(action.Operator)
	if err != nil {
		return "", err
	}
	value, err := quoteLiteral(action.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", stripQualifier(action.Field), op, value), nil
}

func compileFilterInList(action rule.FilterInList) (string, error) {
	values, err := quoteList(action.Values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s IN %s", stripQualifier(action.Field), values), nil
}

func compileFilterIsNull(action rule.FilterIsNull) string {
	if action.IsNull {
		return stripQualifier(action.Field) + " IS NULL"
	}
	return stripQualifier(action.Field) + " IS NOT NULL"
}
