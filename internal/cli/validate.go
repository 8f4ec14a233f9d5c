package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Errors     []Issue  `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Files      int      `json:"files"`
	Containers int      `json:"containers"`
	Commands   int      `json:"commands"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <definitions>",
		Short: "Check definitions without writing a document",
		Long: `Load mission database definitions and resolve every layout without
rendering output. Warnings such as duplicate enumeration labels are
reported; --strict (or strict: true in the config) makes them fail.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	strict := opts.Strict || s.cfg.Strict

	m, res, err := s.resolve(path)
	if err != nil {
		issue := classify(err)
		if !isDefinitionError(issue.Code) {
			return reportFailure(s.formatter, err)
		}
		return outputValidationErrors(s.formatter, ValidationResult{Errors: []Issue{issue}})
	}

	tree := m.Tree()
	result := ValidationResult{
		Valid:      true,
		Files:      len(res.Files),
		Containers: tree.NumContainers(),
		Commands:   tree.NumCommands(),
	}
	for _, w := range tree.Warnings() {
		result.Warnings = append(result.Warnings, w.String())
		s.formatter.VerboseLog("warning: %s", w)
	}

	if strict && len(result.Warnings) > 0 {
		result.Valid = false
		for _, w := range result.Warnings {
			result.Errors = append(result.Errors, Issue{Code: ErrCodeWarning, Message: w})
		}
		return outputValidationErrors(s.formatter, result)
	}

	return outputValidateSuccess(s.formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Definitions valid: %d container(s), %d command(s)\n",
		result.Containers, result.Commands)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w)
	}
	return nil
}

// outputValidationErrors outputs validation failures.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if pos := err.position(); pos != "" {
			fmt.Fprintln(formatter.Writer, pos)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
