package rule

import "fmt"

// Validate checks the rule against the closed taxonomies. It fails fast
// with a SchemaViolation naming the offending field; values are never
// coerced. A rule that passes Validate is safe to hand to the compiler.
func (r *Rule) Validate() error {
	if r.Governance.ControlID == "" {
		return violation("governance.control_id", "must not be empty")
	}
	if r.Governance.Version == "" {
		return violation("governance.version", "must not be empty")
	}
	if !ValidTestingFrequencies[r.Governance.TestingFrequency] {
		return violation("governance.testing_frequency", "unknown frequency %q", r.Governance.TestingFrequency)
	}

	for i, b := range r.OntologyBindings {
		if b.DatasetAlias == "" {
			return violation(fmt.Sprintf("ontology_bindings[%d].dataset_alias", i), "must not be empty")
		}
		if b.TechnicalField == "" {
			return violation(fmt.Sprintf("ontology_bindings[%d].technical_field", i), "must not be empty")
		}
		if !ValidDataTypes[b.DataType] {
			return violation(fmt.Sprintf("ontology_bindings[%d].data_type", i), "unknown data type %q", b.DataType)
		}
	}

	if err := r.validatePopulation(); err != nil {
		return err
	}
	if err := r.validateAssertions(); err != nil {
		return err
	}

	if r.Evidence.RetentionYears <= 0 {
		return violation("evidence.retention_years", "must be positive, got %d", r.Evidence.RetentionYears)
	}
	if !ValidReviewerWorkflows[r.Evidence.ReviewerWorkflow] {
		return violation("evidence.reviewer_workflow", "unknown workflow %q", r.Evidence.ReviewerWorkflow)
	}
	return nil
}

func (r *Rule) validatePopulation() error {
	if r.Population.BaseDataset == "" {
		return violation("population.base_dataset", "must not be empty")
	}

	seen := make(map[string]bool)
	for i, step := range r.Population.Steps {
		path := fmt.Sprintf("population.steps[%d]", i)
		if step.StepID == "" {
			return violation(path+".step_id", "must not be empty")
		}
		if seen[step.StepID] {
			return violation(path+".step_id", "duplicate step id %q", step.StepID)
		}
		seen[step.StepID] = true

		switch a := step.Action.(type) {
		case FilterComparison:
			if a.Field == "" {
				return violation(path+".action.field", "must not be empty")
			}
			if !ValidCompareOps[a.Operator] {
				return violation(path+".action.operator", "unknown operator %q", a.Operator)
			}
			if a.Value == nil {
				return violation(path+".action.value", "must not be absent")
			}
			if _, isNull := a.Value.(Null); isNull {
				return violation(path+".action.value", "null is not comparable; use filter_is_null")
			}
			if _, isList := a.Value.(List); isList {
				return violation(path+".action.value", "list value requires filter_in_list")
			}
		case FilterInList:
			if a.Field == "" {
				return violation(path+".action.field", "must not be empty")
			}
			if len(a.Values) == 0 {
				return violation(path+".action.values", "must not be empty")
			}
		case FilterIsNull:
			if a.Field == "" {
				return violation(path+".action.field", "must not be empty")
			}
		case JoinLeft:
			if a.LeftDataset == "" || a.RightDataset == "" {
				return violation(path+".action", "left_dataset and right_dataset must not be empty")
			}
			if len(a.LeftKeys) == 0 {
				return violation(path+".action.left_keys", "must contain at least one key")
			}
			if len(a.LeftKeys) != len(a.RightKeys) {
				return violation(path+".action.right_keys",
					"key list length mismatch: %d left keys vs %d right keys",
					len(a.LeftKeys), len(a.RightKeys))
			}
		case nil:
			return violation(path+".action", "missing action")
		default:
			return violation(path+".action", "unknown action type %T", step.Action)
		}
	}

	if s := r.Population.Sampling; s != nil && s.Enabled {
		if !ValidSamplingMethods[s.Method] {
			return violation("population.sampling.method", "unknown method %q", s.Method)
		}
		if s.SampleSize == nil && s.SamplePercentage == nil {
			return violation("population.sampling", "enabled sampling requires sample_size or sample_percentage")
		}
		if s.SampleSize != nil && s.SamplePercentage != nil {
			return violation("population.sampling", "sample_size and sample_percentage are mutually exclusive")
		}
		if s.SampleSize != nil && *s.SampleSize <= 0 {
			return violation("population.sampling.sample_size", "must be positive, got %d", *s.SampleSize)
		}
		if s.SamplePercentage != nil && (*s.SamplePercentage <= 0 || *s.SamplePercentage > 1) {
			return violation("population.sampling.sample_percentage", "must be in (0, 1], got %v", *s.SamplePercentage)
		}
	}
	return nil
}

func (r *Rule) validateAssertions() error {
	seen := make(map[string]bool)
	for i, a := range r.Assertions {
		path := fmt.Sprintf("assertions[%d]", i)
		meta := a.Meta()
		if meta.AssertionID == "" {
			return violation(path+".assertion_id", "must not be empty")
		}
		if seen[meta.AssertionID] {
			return violation(path+".assertion_id", "duplicate assertion id %q", meta.AssertionID)
		}
		seen[meta.AssertionID] = true
		if meta.MaterialityThresholdPercent < 0 || meta.MaterialityThresholdPercent > 100 {
			return violation(path+".materiality_threshold_percent",
				"must be in [0, 100], got %v", meta.MaterialityThresholdPercent)
		}

		switch v := a.(type) {
		case ValueMatch:
			if v.Field == "" {
				return violation(path+".field", "must not be empty")
			}
			if !ValidMatchOps[v.Operator] {
				return violation(path+".operator", "unknown operator %q", v.Operator)
			}
			if v.Expected == nil {
				return violation(path+".expected_value", "must be declared (use null explicitly for presence checks)")
			}
			if _, isNull := v.Expected.(Null); isNull {
				if v.Operator != OpEq && v.Operator != OpNeq {
					return violation(path+".operator",
						"operator %q invalid for null comparison; use eq for IS NULL or neq for IS NOT NULL", v.Operator)
				}
			}
			_, isList := v.Expected.(List)
			if (v.Operator == OpIn || v.Operator == OpNotIn) && !isList {
				return violation(path+".expected_value", "operator %q requires a list value", v.Operator)
			}
			if isList && v.Operator != OpIn && v.Operator != OpNotIn {
				return violation(path+".expected_value", "list value requires operator in or not_in")
			}
		case Presence:
			if v.Field == "" {
				return violation(path+".field", "must not be empty")
			}
		case TemporalSequence:
			if len(v.EventChain) < 2 {
				return violation(path+".event_chain", "must contain at least two fields, got %d", len(v.EventChain))
			}
		case TemporalDateMath:
			if v.BaseDateField == "" || v.TargetDateField == "" {
				return violation(path, "base_date_field and target_date_field must not be empty")
			}
			if !ValidCompareOps[v.Operator] {
				return violation(path+".operator", "unknown operator %q", v.Operator)
			}
		case ColumnComparison:
			if v.LeftField == "" || v.RightField == "" {
				return violation(path, "left_field and right_field must not be empty")
			}
			if !ValidCompareOps[v.Operator] {
				return violation(path+".operator", "unknown operator %q", v.Operator)
			}
		case Aggregation:
			if len(v.GroupByFields) == 0 {
				return violation(path+".group_by_fields", "must contain at least one field")
			}
			if v.MetricField == "" {
				return violation(path+".metric_field", "must not be empty")
			}
			if !ValidAggFuncs[v.Function] {
				return violation(path+".aggregation_function", "unknown function %q", v.Function)
			}
			if !ValidCompareOps[v.Operator] {
				return violation(path+".operator", "unknown operator %q", v.Operator)
			}
		case nil:
			return violation(path, "missing assertion")
		default:
			return violation(path, "unknown assertion type %T", a)
		}
	}
	return nil
}
