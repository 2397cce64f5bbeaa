package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/panelguard/panelguard/config"
)

// ValidationResult holds the outcome of a config validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate an engine config file",
		Long: `Validate a panelguard YAML config file.

The file is checked against the CUE schema (field names, types, ranges) and
then against the engine's semantic rules (positive intervals, ordered band
thresholds). Nothing is started; validation only reads the file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if ferr := formatter.Error(ErrCodeGeneric, fmt.Sprintf("cannot read %s: %v", path, err), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "config file not readable")
	}
	formatter.VerboseLog("Read %d bytes from %s", len(raw), path)

	var problems []string
	if err := config.ValidateSchema(raw); err != nil {
		problems = append(problems, err.Error())
	} else if _, err := config.Parse(raw); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		result := ValidationResult{Valid: false, Path: path, Errors: problems}
		if opts.Format == "json" {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else {
			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", p)
			}
		}
		return NewExitError(ExitFailure, "config validation failed")
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Path: path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
	return nil
}
