package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SrinivasPT/control-testing/internal/manifest"
	"github.com/SrinivasPT/control-testing/internal/rule"
	"github.com/SrinivasPT/control-testing/internal/sqlgen"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path for the exception SQL
}

// CompileResult holds the compiled statements for output.
type CompileResult struct {
	ControlID          string   `json:"control_id"`
	Stages             []string `json:"stages"`
	ExceptionSQL       string   `json:"exception_sql"`
	PopulationCountSQL string   `json:"population_count_sql"`
	Grouped            bool     `json:"grouped"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rule.json> <manifests.json>",
		Short: "Compile a rule to SQL without executing it",
		Long: `Compile a typed rule against evidence manifests and print the
exception query and population count query. Compilation is deterministic:
the same rule and manifests always produce byte-identical SQL.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompileCmd(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write exception SQL to file")

	return cmd
}

func runCompileCmd(opts *CompileOptions, rulePath, manifestPath string, cmd *cobra.Command) error {
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

	formatter.VerboseLog("Compiling control %s against %d dataset(s)",
		r.Governance.ControlID, len(manifests))

	cq, err := sqlgen.Compile(r, manifests)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compilation failed", err)
	}

	result := &CompileResult{
		ControlID:          cq.ControlID,
		ExceptionSQL:       cq.ExceptionSQL,
		PopulationCountSQL: cq.PopulationCountSQL,
		Grouped:            cq.Grouped,
	}
	for _, stage := range cq.Stages {
		result.Stages = append(result.Stages, stage.Name)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(cq.ExceptionSQL+"\n"), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled control %s (%d stage(s))\n\n", result.ControlID, len(result.Stages))
	fmt.Fprintln(formatter.Writer, "-- exception query")
	fmt.Fprintln(formatter.Writer, result.ExceptionSQL)
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintln(formatter.Writer, "-- population count")
	fmt.Fprintln(formatter.Writer, result.PopulationCountSQL)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote exception SQL to %s\n", opts.Output)
	}
	return nil
}

// loadInputs loads and reports errors for the rule and manifest files shared
// by every command.
func loadInputs(formatter *OutputFormatter, rulePath, manifestPath string) (*rule.Rule, manifest.Set, error) {
	r, err := LoadRule(rulePath)
	if err != nil {
		code, message := loadErrorParts(err)
		_ = formatter.Error(code, message, nil)
		return nil, nil, WrapExitError(ExitCommandError, message, err)
	}

	manifests, err := LoadManifests(manifestPath)
	if err != nil {
		code, message := loadErrorParts(err)
		_ = formatter.Error(code, message, nil)
		return nil, nil, WrapExitError(ExitCommandError, message, err)
	}
	return r, manifests, nil
}

func loadErrorParts(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}
