package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SrinivasPT/control-testing/internal/rule"
)

// assertionPlan is the routed assertion set. Row-level assertions compile to
// compliance predicates, negated into rowExceptions (OR-combined). Grouped
// assertions compile into having (OR-combined, already negated) over the
// deduplicated groupBy union.
type assertionPlan struct {
	rowExceptions []string
	having        []string
	groupBy       []string
	// metricField backs the representative total_amount projection in
	// grouped output; taken from the first aggregation assertion.
	metricField string
}

func (p *assertionPlan) grouped() bool { return len(p.having) > 0 }

// lowerAssertions compiles every assertion to its exception form. Each
// row-level assertion is compiled as a compliance predicate and wrapped in
// NOT (...), so a row violating any single assertion is an exception.
func lowerAssertions(r *rule.Rule) (*assertionPlan, error) {
	plan := &assertionPlan{}
	seenGroup := make(map[string]bool)

	for _, a := range r.Assertions {
		switch v := a.(type) {
		case rule.ValueMatch:
			cond, err := compileValueMatch(v)
			if err != nil {
				return nil, fmt.Errorf("assertion %q: %w", v.AssertionID, err)
			}
			plan.rowExceptions = append(plan.rowExceptions, "NOT ("+cond+")")

		case rule.Presence:
			cond := stripQualifier(v.Field) + " IS NOT NULL"
			plan.rowExceptions = append(plan.rowExceptions, "NOT ("+cond+")")

		case rule.TemporalSequence:
			plan.rowExceptions = append(plan.rowExceptions, "NOT ("+compileTemporalSequence(v)+")")

		case rule.TemporalDateMath:
			cond, err := compileTemporalDateMath(v)
			if err != nil {
				return nil, fmt.Errorf("assertion %q: %w", v.AssertionID, err)
			}
			plan.rowExceptions = append(plan.rowExceptions, "NOT ("+cond+")")

		case rule.ColumnComparison:
			cond, err := compileColumnComparison(v)
			if err != nil {
				return nil, fmt.Errorf("assertion %q: %w", v.AssertionID, err)
			}
			plan.rowExceptions = append(plan.rowExceptions, "NOT ("+cond+")")

		case rule.Aggregation:
			cond, err := compileAggregation(v)
			if err != nil {
				return nil, fmt.Errorf("assertion %q: %w", v.AssertionID, err)
			}
			plan.having = append(plan.having, "NOT ("+cond+")")
			for _, field := range v.GroupByFields {
				stripped := stripQualifier(field)
				if !seenGroup[stripped] {
					seenGroup[stripped] = true
					plan.groupBy = append(plan.groupBy, stripped)
				}
			}
			if plan.metricField == "" {
				plan.metricField = stripQualifier(v.MetricField)
			}

		default:
			return nil, invariant("unknown assertion type %T", a)
		}
	}
	return plan, nil
}

// compileValueMatch lowers a value-match assertion to its compliance
// predicate. Null literals with eq/neq become IS NULL / IS NOT NULL;
// arithmetic equality against null is never emitted because it is always
// false and would silently hide exceptions.
func compileValueMatch(a rule.ValueMatch) (string, error) {
	field := stripQualifier(a.Field)

	if _, isNull := a.Expected.(rule.Null); isNull {
		switch a.Operator {
		case rule.OpEq:
			return field + " IS NULL", nil
		case rule.OpNeq:
			return field + " IS NOT NULL", nil
		default:
			return "", invariant("operator %q invalid for null comparison", a.Operator)
		}
	}

	op, err := sqlOp(a.Operator)
	if err != nil {
		return "", err
	}

	if a.Operator == rule.OpIn || a.Operator == rule.OpNotIn {
		list, ok := a.Expected.(rule.List)
		if !ok {
			return "", invariant("operator %q requires a list value", a.Operator)
		}
		values, err := quoteList(list)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", field, op, values), nil
	}

	value, err := quoteLiteral(a.Expected)
	if err != nil {
		return "", err
	}

	// String comparisons fold case and surrounding whitespace on both
	// sides unless the rule explicitly opts out.
	if _, isString := a.Expected.(rule.String); isString && !a.CaseSensitive {
		return fmt.Sprintf("TRIM(UPPER(CAST(%s AS VARCHAR))) %s TRIM(UPPER(%s))", field, op, value), nil
	}
	return fmt.Sprintf("%s %s %s", field, op, value), nil
}

// compileTemporalSequence lowers the chain to a conjunction of strict
// orderings over consecutive fields.
func compileTemporalSequence(a rule.TemporalSequence) string {
	conditions := make([]string, 0, len(a.EventChain)-1)
	for i := 0; i < len(a.EventChain)-1; i++ {
		conditions = append(conditions, fmt.Sprintf("%s < %s",
			stripQualifier(a.EventChain[i]), stripQualifier(a.EventChain[i+1])))
	}
	return strings.Join(conditions, " AND ")
}

// compileTemporalDateMath lowers to calendar-day interval arithmetic. Both
// sides are cast to DATE so string-typed source columns are tolerated.
func compileTemporalDateMath(a rule.TemporalDateMath) (string, error) {
	op, err := sqlOp(a.Operator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CAST(%s AS DATE) %s CAST(%s AS DATE) + INTERVAL %d DAY",
		stripQualifier(a.BaseDateField), op, stripQualifier(a.TargetDateField), a.OffsetDays), nil
}

// compileColumnComparison compares two field references. Neither side is
// ever literal-quoted.
func compileColumnComparison(a rule.ColumnComparison) (string, error) {
	op, err := sqlOp(a.Operator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", stripQualifier(a.LeftField), op, stripQualifier(a.RightField)), nil
}

func compileAggregation(a rule.Aggregation) (string, error) {
	op, err := sqlOp(a.Operator)
	if err != nil {
		return "", err
	}
	if !rule.ValidAggFuncs[a.Function] {
		return "", invariant("aggregation function %q has no SQL mapping", a.Function)
	}
	threshold := strconv.FormatFloat(a.Threshold, 'f', -1, 64)
	return fmt.Sprintf("%s(%s) %s %s", a.Function, stripQualifier(a.MetricField), op, threshold), nil
}
