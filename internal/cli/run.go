package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SrinivasPT/control-testing/internal/audit"
	"github.com/SrinivasPT/control-testing/internal/backend"
	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/healing"
	"github.com/SrinivasPT/control-testing/internal/rule"
)

// openBackend opens the execution backend. Swapped in tests.
var openBackend = func() (backend.Backend, error) {
	return backend.OpenDuckDB()
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	LedgerPath     string
	SampleLimit    int
	VerifyEvidence bool
}

// RunResult is the verdict in wire form.
type RunResult struct {
	RunID                       string            `json:"run_id"`
	ControlID                   string            `json:"control_id"`
	Outcome                     string            `json:"outcome"`
	PopulationSize              int64             `json:"population_size"`
	ExceptionCount              int64             `json:"exception_count"`
	ExceptionRatePercent        float64           `json:"exception_rate_percent"`
	MaterialityThresholdPercent float64           `json:"materiality_threshold_percent"`
	EvidenceHashes              map[string]string `json:"evidence_hashes"`
	ExceptionsSample            []map[string]any  `json:"exceptions_sample,omitempty"`
	ErrorCode                   string            `json:"error_code,omitempty"`
	ErrorMessage                string            `json:"error_message,omitempty"`
	Healed                      bool              `json:"healed,omitempty"`
	ExecutedAt                  string            `json:"executed_at"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rule.json> <manifests.json>",
		Short: "Execute a control test and record the verdict",
		Long: `Compile a rule, execute it against the evidence named by the
manifests, and emit a PASS/FAIL/ERROR verdict. With --db, the rule version
and verdict are appended to the audit ledger.

Exit code 0 means PASS; FAIL and ERROR verdicts exit 1.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCmd(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LedgerPath, "db", "", "audit ledger path (omit to skip persistence)")
	cmd.Flags().IntVar(&opts.SampleLimit, "sample-limit", engine.DefaultSampleLimit, "max exception rows carried on the verdict")
	cmd.Flags().BoolVar(&opts.VerifyEvidence, "verify-evidence", false, "recompute evidence file hashes before executing")

	return cmd
}

func runRunCmd(opts *RunOptions, rulePath, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	r, manifests, err := loadInputs(formatter, rulePath, manifestPath)
	if err != nil {
		return err
	}

	if opts.VerifyEvidence {
		for _, alias := range manifests.Aliases() {
			if err := manifests[alias].Verify(); err != nil {
				_ = formatter.Error(ErrCodeEvidence, err.Error(), nil)
				return WrapExitError(ExitFailure, "evidence verification failed", err)
			}
		}
	}

	b, err := openBackend()
	if err != nil {
		_ = formatter.Error(ErrCodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening backend", err)
	}
	defer b.Close()

	eng := engine.New(b, engine.WithSampleLimit(opts.SampleLimit))
	protocol := healing.NewProtocol(eng, nil)

	verdict, err := protocol.Run(cmd.Context(), r, manifests)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "execution aborted", err)
	}

	if opts.LedgerPath != "" {
		if err := persistVerdict(opts.LedgerPath, cmd, r, verdict); err != nil {
			_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
			return WrapExitError(ExitCommandError, "recording verdict", err)
		}
		formatter.VerboseLog("Recorded run %s in %s", verdict.RunID, opts.LedgerPath)
	}

	result := verdictResult(verdict)
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printVerdictText(formatter, result)
	}

	if verdict.Outcome != engine.OutcomePass {
		return NewExitError(ExitFailure, fmt.Sprintf("verdict %s", verdict.Outcome))
	}
	return nil
}

func persistVerdict(path string, cmd *cobra.Command, r *rule.Rule, verdict *engine.Verdict) error {
	ledger, err := audit.Open(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	if err := ledger.SaveRule(cmd.Context(), r); err != nil {
		return err
	}
	return ledger.SaveVerdict(cmd.Context(), verdict)
}

func verdictResult(v *engine.Verdict) *RunResult {
	return &RunResult{
		RunID:                       v.RunID,
		ControlID:                   v.ControlID,
		Outcome:                     string(v.Outcome),
		PopulationSize:              v.PopulationSize,
		ExceptionCount:              v.ExceptionCount,
		ExceptionRatePercent:        v.ExceptionRatePercent,
		MaterialityThresholdPercent: v.MaterialityThresholdPercent,
		EvidenceHashes:              v.EvidenceHashes,
		ExceptionsSample:            v.ExceptionsSample,
		ErrorCode:                   string(v.ErrorCode),
		ErrorMessage:                v.ErrorMessage,
		Healed:                      v.Healed,
		ExecutedAt:                  v.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

func printVerdictText(formatter *OutputFormatter, r *RunResult) {
	switch r.Outcome {
	case string(engine.OutcomePass):
		fmt.Fprintf(formatter.Writer, "✓ PASS %s\n", r.ControlID)
	case string(engine.OutcomeFail):
		fmt.Fprintf(formatter.Writer, "✗ FAIL %s\n", r.ControlID)
	default:
		fmt.Fprintf(formatter.Writer, "! ERROR %s\n", r.ControlID)
	}

	fmt.Fprintf(formatter.Writer, "  run:        %s\n", r.RunID)
	if r.Outcome == string(engine.OutcomeError) {
		fmt.Fprintf(formatter.Writer, "  error:      [%s] %s\n", r.ErrorCode, r.ErrorMessage)
		return
	}
	fmt.Fprintf(formatter.Writer, "  population: %d\n", r.PopulationSize)
	fmt.Fprintf(formatter.Writer, "  exceptions: %d (%.2f%%, threshold %.2f%%)\n",
		r.ExceptionCount, r.ExceptionRatePercent, r.MaterialityThresholdPercent)
	if r.Healed {
		fmt.Fprintln(formatter.Writer, "  healed:     rule was revised once before execution")
	}
}
