package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/graph"
	"github.com/groundworklabs/groundwork/internal/provider"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	*RootOptions
	Dir string
}

// ValidationResult is the JSON shape of a validate run.
type ValidationResult struct {
	Valid     bool                   `json:"valid"`
	Resources int                    `json:"resources"`
	Errors    []decl.ValidationError `json:"errors,omitempty"`
}

// Graph-level findings surface under codes continuing the declaration
// validator's range.
const (
	errCodeCycle      = "E201"
	errCodeUnresolved = "E202"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a declaration without touching state",
		Long: `Validate compiles the declaration, checks every resource against its
schema, and builds the dependency graph. No provider call is made and no
state lease is taken. Every violation is reported, not just the first.`,
		Example: `  # Validate the current directory
  groundwork validate

  # Machine-readable report for CI
  groundwork validate -d infra/ --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dir, "dir", "d", ".", "declaration directory")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	d, loadErrs := decl.LoadDir(opts.Dir, decl.LoadModeCollectAll)
	if d == nil {
		// Nothing compiled at all. That is a command error, not a finding.
		err := loadErrs[0]
		code := decl.ErrCodeGeneric
		var loadErr *decl.LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "declaration failed to load", err)
	}

	var verrs []decl.ValidationError
	for _, err := range loadErrs {
		var loadErr *decl.LoadError
		if errors.As(err, &loadErr) {
			verrs = append(verrs, decl.ValidationError{
				Resource: "load", Message: loadErr.Message, Code: loadErr.Code,
			})
			continue
		}
		verrs = append(verrs, decl.ValidationError{
			Resource: "load", Message: err.Error(), Code: decl.ErrCodeGeneric,
		})
	}

	reg := provider.DefaultRegistry()
	verrs = append(verrs, decl.Validate(d, reg)...)

	// Graph checks only make sense once the per-resource rules pass.
	if len(verrs) == 0 {
		if _, err := graph.Build(d, reg); err != nil {
			code := errCodeUnresolved
			if graph.IsCycle(err) {
				code = errCodeCycle
			}
			verrs = append(verrs, decl.ValidationError{
				Resource: "graph", Message: err.Error(), Code: code,
			})
		}
	}

	result := ValidationResult{
		Valid:     len(verrs) == 0,
		Resources: len(d.Resources),
		Errors:    verrs,
	}

	if formatter.JSON() {
		if len(verrs) > 0 {
			_ = formatter.Error("invalid_declaration",
				fmt.Sprintf("%d validation error(s)", len(verrs)), result)
			return NewExitError(ExitFailure, "declaration invalid")
		}
		return formatter.Success(result)
	}

	if len(verrs) > 0 {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		for _, ve := range verrs {
			fmt.Fprintf(formatter.Writer, "  %s\n", ve.Error())
		}
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d validation error(s)", len(verrs)))
	}

	fmt.Fprintf(formatter.Writer, "✓ Declaration valid (%d resource(s))\n", len(d.Resources))
	return nil
}
