package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cellrules/internal/compiler"
)

// ValidationIssue is one definition error.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult is the report of the validate command.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Files       int               `json:"files"`
	Devices     []string          `json:"devices,omitempty"`
	AlarmGroups []string          `json:"alarm_groups,omitempty"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Check device and alarm definitions",
		Long: `Compile every CUE file in a definitions directory and report all
errors with their positions. Nothing is started.

Exit codes:
  0 - definitions are valid
  1 - definitions have errors
  2 - command error (directory not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	res, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if res == nil {
		issue := toIssue(errs[0])
		if isCommandError(issue.Code) {
			_ = formatter.Error(issue.Code, issue.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
		}
		res = &compiler.Result{}
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	report := ValidationResult{Valid: len(errs) == 0, Files: res.FileCount}
	for _, d := range res.Devices {
		report.Devices = append(report.Devices, d.Def.Name)
	}
	for _, g := range res.Alarms {
		report.AlarmGroups = append(report.AlarmGroups, g.Name)
	}
	for _, err := range errs {
		report.Errors = append(report.Errors, toIssue(err))
	}

	if report.Valid {
		if formatter.isJSON() {
			return formatter.Success(report)
		}
		fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d devices, %d alarm groups)\n",
			len(report.Devices), len(report.AlarmGroups))
		return nil
	}

	if formatter.isJSON() {
		first := report.Errors[0]
		if err := formatter.Failure(first.Code, first.Message, report); err != nil {
			return err
		}
	} else {
		writeIssues(formatter, report.Errors)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(report.Errors)))
}

// isCommandError reports whether code means the directory could not be
// read at all.
func isCommandError(code string) bool {
	switch code {
	case compiler.ErrCodeScanError, compiler.ErrCodeNoFiles, compiler.ErrCodeNotFound:
		return true
	}
	return false
}

func toIssue(err error) ValidationIssue {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return ValidationIssue{Code: compiler.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: ce.Code, Field: ce.Field, Message: ce.Message}
	if ce.Pos.IsValid() {
		issue.File = ce.Pos.Filename()
		issue.Line = ce.Pos.Line()
		issue.Column = ce.Pos.Column()
	}
	return issue
}

func writeIssues(formatter *OutputFormatter, issues []ValidationIssue) {
	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range issues {
		if issue.File != "" {
			fmt.Fprintf(w, "%s:%d:%d\n", issue.File, issue.Line, issue.Column)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
	}
}
