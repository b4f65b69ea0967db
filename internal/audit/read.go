package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("audit: record not found")

// GetRule loads one recorded rule version.
func (l *Ledger) GetRule(ctx context.Context, controlID, version string) (*rule.Rule, error) {
	var ruleJSON string
	err := l.db.QueryRowContext(ctx, `
		SELECT rule_json FROM controls
		WHERE control_id = ? AND version = ?
	`, controlID, version).Scan(&ruleJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}

	var r rule.Rule
	if err := json.Unmarshal([]byte(ruleJSON), &r); err != nil {
		return nil, fmt.Errorf("get rule: decode stored rule: %w", err)
	}
	return &r, nil
}

// GetVerdict loads one execution record by run ID.
func (l *Ledger) GetVerdict(ctx context.Context, runID string) (*engine.Verdict, error) {
	row := l.db.QueryRowContext(ctx, selectVerdict+` WHERE run_id = ?`, runID)
	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListVerdicts returns all execution records for a control, most recent
// first. The result is the control's full testing history inside the
// retention window.
func (l *Ledger) ListVerdicts(ctx context.Context, controlID string) ([]*engine.Verdict, error) {
	rows, err := l.db.QueryContext(ctx, selectVerdict+`
		WHERE control_id = ?
		ORDER BY executed_at DESC, run_id
	`, controlID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []*engine.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	return verdicts, nil
}

const selectVerdict = `
	SELECT run_id, control_id, outcome, population_size, exception_count,
	       exception_rate_percent, materiality_threshold_percent, compiled_sql,
	       evidence_hashes, exceptions_sample, error_code, error_message,
	       healed, executed_at
	FROM executions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row rowScanner) (*engine.Verdict, error) {
	var (
		v          engine.Verdict
		outcome    string
		hashesJSON string
		sampleJSON string
		errCode    sql.NullString
		errMsg     sql.NullString
		healed     int
		executedAt string
	)
	err := row.Scan(
		&v.RunID, &v.ControlID, &outcome, &v.PopulationSize, &v.ExceptionCount,
		&v.ExceptionRatePercent, &v.MaterialityThresholdPercent, &v.CompiledSQL,
		&hashesJSON, &sampleJSON, &errCode, &errMsg, &healed, &executedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Outcome = engine.Outcome(outcome)
	v.ErrorCode = engine.ErrorCode(errCode.String)
	v.ErrorMessage = errMsg.String
	v.Healed = healed != 0

	if err := json.Unmarshal([]byte(hashesJSON), &v.EvidenceHashes); err != nil {
		return nil, fmt.Errorf("decode evidence hashes: %w", err)
	}
	if err := json.Unmarshal([]byte(sampleJSON), &v.ExceptionsSample); err != nil {
		return nil, fmt.Errorf("decode exceptions sample: %w", err)
	}
	if v.ExecutedAt, err = time.Parse(time.RFC3339Nano, executedAt); err != nil {
		return nil, fmt.Errorf("decode executed_at: %w", err)
	}
	return &v, nil
}
