package rule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// The wire format is the canonical DSL JSON produced by the rule-translation
// collaborator: pipeline actions are discriminated by "operation", assertions
// by "assertion_type". Unknown discriminators are rejected, never skipped.

type wireGovernance struct {
	ControlID           string   `json:"control_id"`
	Version             string   `json:"version"`
	OwnerRole           string   `json:"owner_role"`
	TestingFrequency    string   `json:"testing_frequency"`
	RegulatoryCitations []string `json:"regulatory_citations"`
	RiskObjective       string   `json:"risk_objective"`
}

type wireBinding struct {
	BusinessTerm   string `json:"business_term"`
	DatasetAlias   string `json:"dataset_alias"`
	TechnicalField string `json:"technical_field"`
	DataType       string `json:"data_type"`
}

type wireSampling struct {
	Enabled             bool     `json:"enabled"`
	Method              string   `json:"method,omitempty"`
	SampleSize          *int     `json:"sample_size,omitempty"`
	SamplePercentage    *float64 `json:"sample_percentage,omitempty"`
	StratificationField string   `json:"stratification_field,omitempty"`
	RandomSeed          *int     `json:"random_seed,omitempty"`
	Justification       string   `json:"justification,omitempty"`
}

type wirePipeline struct {
	BaseDataset string            `json:"base_dataset"`
	Steps       []json.RawMessage `json:"steps"`
	Sampling    *wireSampling     `json:"sampling,omitempty"`
}

type wireStep struct {
	StepID string          `json:"step_id"`
	Action json.RawMessage `json:"action"`
}

type wireEvidence struct {
	RetentionYears        int    `json:"retention_years"`
	ReviewerWorkflow      string `json:"reviewer_workflow"`
	ExceptionRoutingQueue string `json:"exception_routing_queue"`
}

type wireRule struct {
	Governance       wireGovernance    `json:"governance"`
	OntologyBindings []wireBinding     `json:"ontology_bindings"`
	Population       wirePipeline      `json:"population"`
	Assertions       []json.RawMessage `json:"assertions"`
	Evidence         wireEvidence      `json:"evidence"`
}

// UnmarshalJSON decodes the canonical DSL JSON form of a rule.
// Decoding validates discriminators only; call Validate for the full
// construction checks.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode rule: %w", err)
	}

	r.Governance = Governance{
		ControlID:           w.Governance.ControlID,
		Version:             w.Governance.Version,
		OwnerRole:           w.Governance.OwnerRole,
		TestingFrequency:    TestingFrequency(w.Governance.TestingFrequency),
		RegulatoryCitations: w.Governance.RegulatoryCitations,
		RiskObjective:       w.Governance.RiskObjective,
	}

	r.OntologyBindings = nil
	for _, b := range w.OntologyBindings {
		r.OntologyBindings = append(r.OntologyBindings, OntologyBinding{
			BusinessTerm:   b.BusinessTerm,
			DatasetAlias:   b.DatasetAlias,
			TechnicalField: b.TechnicalField,
			DataType:       DataType(b.DataType),
		})
	}

	r.Population = Pipeline{BaseDataset: w.Population.BaseDataset}
	for i, raw := range w.Population.Steps {
		step, err := decodeStep(raw)
		if err != nil {
			return fmt.Errorf("decode population.steps[%d]: %w", i, err)
		}
		r.Population.Steps = append(r.Population.Steps, step)
	}
	if w.Population.Sampling != nil {
		s := w.Population.Sampling
		r.Population.Sampling = &Sampling{
			Enabled:             s.Enabled,
			Method:              SamplingMethod(s.Method),
			SampleSize:          s.SampleSize,
			SamplePercentage:    s.SamplePercentage,
			StratificationField: s.StratificationField,
			RandomSeed:          s.RandomSeed,
			Justification:       s.Justification,
		}
	}

	r.Assertions = nil
	for i, raw := range w.Assertions {
		a, err := decodeAssertion(raw)
		if err != nil {
			return fmt.Errorf("decode assertions[%d]: %w", i, err)
		}
		r.Assertions = append(r.Assertions, a)
	}

	r.Evidence = EvidenceRequirements{
		RetentionYears:        w.Evidence.RetentionYears,
		ReviewerWorkflow:      ReviewerWorkflow(w.Evidence.ReviewerWorkflow),
		ExceptionRoutingQueue: w.Evidence.ExceptionRoutingQueue,
	}
	return nil
}

func decodeStep(raw json.RawMessage) (Step, error) {
	var w wireStep
	if err := json.Unmarshal(raw, &w); err != nil {
		return Step{}, err
	}
	action, err := decodeAction(w.Action)
	if err != nil {
		return Step{}, err
	}
	return Step{StepID: w.StepID, Action: action}, nil
}

func decodeAction(raw json.RawMessage) (Action, error) {
	var tag struct {
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}

	switch tag.Operation {
	case "filter_comparison":
		var w struct {
			Field    string          `json:"field"`
			Operator string          `json:"operator"`
			Value    json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		value, err := decodeLiteral(w.Value)
		if err != nil {
			return nil, err
		}
		return FilterComparison{Field: w.Field, Operator: Op(w.Operator), Value: value}, nil

	case "filter_in_list":
		var w struct {
			Field  string            `json:"field"`
			Values []json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		values, err := decodeLiteralList(w.Values)
		if err != nil {
			return nil, err
		}
		return FilterInList{Field: w.Field, Values: values}, nil

	case "filter_is_null":
		var w struct {
			Field  string `json:"field"`
			IsNull bool   `json:"is_null"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return FilterIsNull{Field: w.Field, IsNull: w.IsNull}, nil

	case "join_left":
		var w struct {
			LeftDataset  string   `json:"left_dataset"`
			RightDataset string   `json:"right_dataset"`
			LeftKeys     []string `json:"left_keys"`
			RightKeys    []string `json:"right_keys"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return JoinLeft{
			LeftDataset:  w.LeftDataset,
			RightDataset: w.RightDataset,
			LeftKeys:     w.LeftKeys,
			RightKeys:    w.RightKeys,
		}, nil

	case "":
		return nil, fmt.Errorf("action missing operation discriminator")
	default:
		return nil, fmt.Errorf("unknown action operation %q", tag.Operation)
	}
}

type wireAssertionMeta struct {
	AssertionID                 string  `json:"assertion_id"`
	Description                 string  `json:"description"`
	MaterialityThresholdPercent float64 `json:"materiality_threshold_percent"`
}

func (m wireAssertionMeta) meta() AssertionMeta {
	return AssertionMeta{
		AssertionID:                 m.AssertionID,
		Description:                 m.Description,
		MaterialityThresholdPercent: m.MaterialityThresholdPercent,
	}
}

func decodeAssertion(raw json.RawMessage) (Assertion, error) {
	var tag struct {
		Type string `json:"assertion_type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case "value_match":
		var w struct {
			wireAssertionMeta
			Field              string          `json:"field"`
			Operator           string          `json:"operator"`
			ExpectedValue      json.RawMessage `json:"expected_value"`
			IgnoreCaseAndSpace *bool           `json:"ignore_case_and_space"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		expected, err := decodeLiteral(w.ExpectedValue)
		if err != nil {
			return nil, err
		}
		// The wire form declares folding; the type declares sensitivity.
		// Folding defaults on, so sensitivity is off unless declared.
		caseSensitive := false
		if w.IgnoreCaseAndSpace != nil {
			caseSensitive = !*w.IgnoreCaseAndSpace
		}
		return ValueMatch{
			AssertionMeta: w.meta(),
			Field:         w.Field,
			Operator:      Op(w.Operator),
			Expected:      expected,
			CaseSensitive: caseSensitive,
		}, nil

	case "presence":
		var w struct {
			wireAssertionMeta
			Field string `json:"field"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return Presence{AssertionMeta: w.meta(), Field: w.Field}, nil

	case "temporal_sequence":
		var w struct {
			wireAssertionMeta
			EventChain []string `json:"event_chain"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TemporalSequence{AssertionMeta: w.meta(), EventChain: w.EventChain}, nil

	case "temporal_date_math":
		var w struct {
			wireAssertionMeta
			BaseDateField   string `json:"base_date_field"`
			Operator        string `json:"operator"`
			TargetDateField string `json:"target_date_field"`
			OffsetDays      int    `json:"offset_days"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TemporalDateMath{
			AssertionMeta:   w.meta(),
			BaseDateField:   w.BaseDateField,
			Operator:        Op(w.Operator),
			TargetDateField: w.TargetDateField,
			OffsetDays:      w.OffsetDays,
		}, nil

	case "column_comparison":
		var w struct {
			wireAssertionMeta
			LeftField  string `json:"left_field"`
			Operator   string `json:"operator"`
			RightField string `json:"right_field"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ColumnComparison{
			AssertionMeta: w.meta(),
			LeftField:     w.LeftField,
			Operator:      Op(w.Operator),
			RightField:    w.RightField,
		}, nil

	case "aggregation", "aggregation_sum":
		var w struct {
			wireAssertionMeta
			GroupByFields       []string `json:"group_by_fields"`
			MetricField         string   `json:"metric_field"`
			AggregationFunction string   `json:"aggregation_function"`
			Operator            string   `json:"operator"`
			Threshold           float64  `json:"threshold"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		// aggregation_sum is the legacy wire form; it is always SUM.
		fn := AggFunc(w.AggregationFunction)
		if tag.Type == "aggregation_sum" {
			fn = AggSum
		}
		return Aggregation{
			AssertionMeta: w.meta(),
			GroupByFields: w.GroupByFields,
			MetricField:   w.MetricField,
			Function:      fn,
			Operator:      Op(w.Operator),
			Threshold:     w.Threshold,
		}, nil

	case "":
		return nil, fmt.Errorf("assertion missing assertion_type discriminator")
	default:
		return nil, fmt.Errorf("unknown assertion_type %q", tag.Type)
	}
}

func decodeLiteral(raw json.RawMessage) (Literal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return literalFromAny(v)
}

func decodeLiteralList(raws []json.RawMessage) (List, error) {
	list := make(List, 0, len(raws))
	for _, raw := range raws {
		lit, err := decodeLiteral(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, lit)
	}
	return list, nil
}

func literalFromAny(v any) (Literal, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number literal %q: %w", val.String(), err)
		}
		return Number(f), nil
	case []any:
		list := make(List, 0, len(val))
		for _, item := range val {
			lit, err := literalFromAny(item)
			if err != nil {
				return nil, err
			}
			list = append(list, lit)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

// MarshalJSON encodes the rule back to the canonical DSL JSON form.
// Legacy aggregation_sum assertions round-trip as the generalized
// aggregation form.
func (r Rule) MarshalJSON() ([]byte, error) {
	w := wireRule{
		Governance: wireGovernance{
			ControlID:           r.Governance.ControlID,
			Version:             r.Governance.Version,
			OwnerRole:           r.Governance.OwnerRole,
			TestingFrequency:    string(r.Governance.TestingFrequency),
			RegulatoryCitations: r.Governance.RegulatoryCitations,
			RiskObjective:       r.Governance.RiskObjective,
		},
		Evidence: wireEvidence{
			RetentionYears:        r.Evidence.RetentionYears,
			ReviewerWorkflow:      string(r.Evidence.ReviewerWorkflow),
			ExceptionRoutingQueue: r.Evidence.ExceptionRoutingQueue,
		},
	}
	for _, b := range r.OntologyBindings {
		w.OntologyBindings = append(w.OntologyBindings, wireBinding{
			BusinessTerm:   b.BusinessTerm,
			DatasetAlias:   b.DatasetAlias,
			TechnicalField: b.TechnicalField,
			DataType:       string(b.DataType),
		})
	}

	w.Population.BaseDataset = r.Population.BaseDataset
	for _, step := range r.Population.Steps {
		raw, err := encodeStep(step)
		if err != nil {
			return nil, err
		}
		w.Population.Steps = append(w.Population.Steps, raw)
	}
	if s := r.Population.Sampling; s != nil {
		w.Population.Sampling = &wireSampling{
			Enabled:             s.Enabled,
			Method:              string(s.Method),
			SampleSize:          s.SampleSize,
			SamplePercentage:    s.SamplePercentage,
			StratificationField: s.StratificationField,
			RandomSeed:          s.RandomSeed,
			Justification:       s.Justification,
		}
	}

	for _, a := range r.Assertions {
		raw, err := encodeAssertion(a)
		if err != nil {
			return nil, err
		}
		w.Assertions = append(w.Assertions, raw)
	}
	return json.Marshal(w)
}

func encodeStep(step Step) (json.RawMessage, error) {
	action, err := encodeAction(step.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"step_id": step.StepID,
		"action":  action,
	})
}

func encodeAction(a Action) (map[string]any, error) {
	switch act := a.(type) {
	case FilterComparison:
		value, err := encodeLiteral(act.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"operation": "filter_comparison",
			"field":     act.Field,
			"operator":  string(act.Operator),
			"value":     value,
		}, nil
	case FilterInList:
		values, err := encodeLiteral(act.Values)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"operation": "filter_in_list",
			"field":     act.Field,
			"values":    values,
		}, nil
	case FilterIsNull:
		return map[string]any{
			"operation": "filter_is_null",
			"field":     act.Field,
			"is_null":   act.IsNull,
		}, nil
	case JoinLeft:
		return map[string]any{
			"operation":     "join_left",
			"left_dataset":  act.LeftDataset,
			"right_dataset": act.RightDataset,
			"left_keys":     act.LeftKeys,
			"right_keys":    act.RightKeys,
		}, nil
	default:
		return nil, fmt.Errorf("unknown action type %T", a)
	}
}

func encodeAssertion(a Assertion) (json.RawMessage, error) {
	meta := a.Meta()
	m := map[string]any{
		"assertion_id":                  meta.AssertionID,
		"description":                   meta.Description,
		"materiality_threshold_percent": meta.MaterialityThresholdPercent,
	}

	switch v := a.(type) {
	case ValueMatch:
		expected, err := encodeLiteral(v.Expected)
		if err != nil {
			return nil, err
		}
		m["assertion_type"] = "value_match"
		m["field"] = v.Field
		m["operator"] = string(v.Operator)
		m["expected_value"] = expected
		m["ignore_case_and_space"] = !v.CaseSensitive
	case Presence:
		m["assertion_type"] = "presence"
		m["field"] = v.Field
	case TemporalSequence:
		m["assertion_type"] = "temporal_sequence"
		m["event_chain"] = v.EventChain
	case TemporalDateMath:
		m["assertion_type"] = "temporal_date_math"
		m["base_date_field"] = v.BaseDateField
		m["operator"] = string(v.Operator)
		m["target_date_field"] = v.TargetDateField
		m["offset_days"] = v.OffsetDays
	case ColumnComparison:
		m["assertion_type"] = "column_comparison"
		m["left_field"] = v.LeftField
		m["operator"] = string(v.Operator)
		m["right_field"] = v.RightField
	case Aggregation:
		m["assertion_type"] = "aggregation"
		m["group_by_fields"] = v.GroupByFields
		m["metric_field"] = v.MetricField
		m["aggregation_function"] = string(v.Function)
		m["operator"] = string(v.Operator)
		m["threshold"] = v.Threshold
	default:
		return nil, fmt.Errorf("unknown assertion type %T", a)
	}
	return json.Marshal(m)
}

func encodeLiteral(l Literal) (any, error) {
	switch val := l.(type) {
	case nil:
		return nil, nil
	case Null:
		return nil, nil
	case String:
		return string(val), nil
	case Bool:
		return bool(val), nil
	case Number:
		return json.RawMessage(FormatNumber(val)), nil
	case Time:
		return time.Time(val).Format(time.RFC3339), nil
	case List:
		out := make([]any, 0, len(val))
		for _, item := range val {
			enc, err := encodeLiteral(item)
			if err != nil {
				return nil, err
			}
			out = append(out, enc)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", l)
	}
}
