package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SrinivasPT/control-testing/internal/audit"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	LedgerPath string
	Limit      int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <control-id>",
		Short: "Show recorded verdicts for a control",
		Long: `List the execution history of a control from the audit ledger,
most recent first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LedgerPath, "db", "audit.db", "audit ledger path")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "max runs to show")

	return cmd
}

func runHistoryCmd(opts *HistoryOptions, controlID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ledger, err := audit.Open(opts.LedgerPath)
	if err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening ledger", err)
	}
	defer ledger.Close()

	verdicts, err := ledger.ListVerdicts(cmd.Context(), controlID)
	if err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading ledger", err)
	}
	if opts.Limit > 0 && len(verdicts) > opts.Limit {
		verdicts = verdicts[:opts.Limit]
	}

	if formatter.Format == "json" {
		results := make([]*RunResult, 0, len(verdicts))
		for _, v := range verdicts {
			results = append(results, verdictResult(v))
		}
		return formatter.Success(results)
	}

	if len(verdicts) == 0 {
		fmt.Fprintf(formatter.Writer, "No recorded runs for %s\n", controlID)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d run(s) for %s:\n", len(verdicts), controlID)
	for _, v := range verdicts {
		line := fmt.Sprintf("  %s  %-5s  %s", v.ExecutedAt.UTC().Format("2006-01-02 15:04:05"), v.Outcome, v.RunID)
		if v.Outcome != "ERROR" {
			line += fmt.Sprintf("  %d/%d exceptions (%.2f%%)", v.ExceptionCount, v.PopulationSize, v.ExceptionRatePercent)
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}
