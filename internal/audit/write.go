package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// SaveRule inserts one rule version, serialized to its wire JSON.
// Uses ON CONFLICT DO NOTHING for idempotency: a (control_id, version)
// pair is immutable once recorded, and re-running a control must never
// rewrite the logic its earlier verdicts point at.
func (l *Ledger) SaveRule(ctx context.Context, r *rule.Rule) error {
	ruleJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO controls (control_id, version, rule_json)
		VALUES (?, ?, ?)
		ON CONFLICT(control_id, version) DO NOTHING
	`,
		r.Governance.ControlID,
		r.Governance.Version,
		string(ruleJSON),
	)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

// SaveVerdict appends one execution record. Uses ON CONFLICT(run_id)
// DO NOTHING for idempotency - a run ID names exactly one outcome, so a
// retried write after a crash is silently ignored.
func (l *Ledger) SaveVerdict(ctx context.Context, v *engine.Verdict) error {
	hashesJSON, err := json.Marshal(v.EvidenceHashes)
	if err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	sampleJSON, err := json.Marshal(v.ExceptionsSample)
	if err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}

	healed := 0
	if v.Healed {
		healed = 1
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO executions
		(run_id, control_id, outcome, population_size, exception_count,
		 exception_rate_percent, materiality_threshold_percent, compiled_sql,
		 evidence_hashes, exceptions_sample, error_code, error_message,
		 healed, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		v.RunID,
		v.ControlID,
		string(v.Outcome),
		v.PopulationSize,
		v.ExceptionCount,
		v.ExceptionRatePercent,
		v.MaterialityThresholdPercent,
		v.CompiledSQL,
		string(hashesJSON),
		string(sampleJSON),
		nullable(string(v.ErrorCode)),
		nullable(v.ErrorMessage),
		healed,
		v.ExecutedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
