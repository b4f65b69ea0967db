package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SrinivasPT/control-testing/internal/engine"
	"github.com/SrinivasPT/control-testing/internal/sqlgen"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	VerifyEvidence bool
}

// ValidateResult holds the preflight report for output.
type ValidateResult struct {
	ControlID string         `json:"control_id"`
	Status    string         `json:"status"`
	Datasets  []DatasetCheck `json:"datasets"`
}

// DatasetCheck is the drift report for one dataset.
type DatasetCheck struct {
	DatasetAlias     string   `json:"dataset_alias"`
	Status           string   `json:"status"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	AvailableColumns []string `json:"available_columns,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <rule.json> <manifests.json>",
		Short: "Validate a rule and check for schema drift",
		Long: `Validate a rule's structure, compile it, and check every ontology
binding against the columns its dataset's manifest declares. Exits 1 when
drift is detected so schedulers can route the control for re-translation
before execution.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateCmd(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.VerifyEvidence, "verify-evidence", false, "recompute evidence file hashes against the manifest")

	return cmd
}

func runValidateCmd(opts *ValidateOptions, rulePath, manifestPath string, cmd *cobra.Command) error {
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

	// Compilation catches construction problems drift checks cannot, like
	// mixed row and aggregation assertions.
	if _, err := sqlgen.Compile(r, manifests); err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compilation failed", err)
	}

	if opts.VerifyEvidence {
		for _, alias := range manifests.Aliases() {
			if err := manifests[alias].Verify(); err != nil {
				_ = formatter.Error(ErrCodeEvidence, err.Error(), nil)
				return WrapExitError(ExitFailure, "evidence verification failed", err)
			}
			formatter.VerboseLog("Evidence hash verified for %s", alias)
		}
	}

	report := engine.ValidateSchema(r, manifests)
	result := &ValidateResult{
		ControlID: r.Governance.ControlID,
		Status:    string(report.Status),
	}
	for _, d := range report.Datasets {
		result.Datasets = append(result.Datasets, DatasetCheck{
			DatasetAlias:     d.DatasetAlias,
			Status:           string(d.Status),
			MissingColumns:   d.MissingColumns,
			AvailableColumns: d.AvailableColumns,
		})
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printValidateText(formatter, result)
	}

	if report.Status == engine.SchemaDrift {
		return NewExitError(ExitFailure, "schema drift detected")
	}
	return nil
}

func printValidateText(formatter *OutputFormatter, result *ValidateResult) {
	if result.Status == string(engine.SchemaValid) {
		fmt.Fprintf(formatter.Writer, "✓ Control %s is valid\n", result.ControlID)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Control %s: schema drift detected\n", result.ControlID)
	}
	for _, d := range result.Datasets {
		if len(d.MissingColumns) == 0 {
			fmt.Fprintf(formatter.Writer, "  %s: ok\n", d.DatasetAlias)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: missing %v (available: %v)\n",
			d.DatasetAlias, d.MissingColumns, d.AvailableColumns)
	}
}
