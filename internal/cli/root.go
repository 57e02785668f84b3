package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/config"
	"github.com/groundworklabs/groundwork/internal/engine"
	"github.com/groundworklabs/groundwork/internal/state"
)

// RootOptions holds the global flags shared by all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "text" | "json"
	State       string // backend DSN
	Provider    string // provider implementation
	Parallelism int
	ConfigPath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the groundwork CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "groundwork",
		Short: "Declarative infrastructure reconciliation",
		Long: `groundwork reads a declarative description of resources, computes the
plan that would bring reality in line with it, and applies that plan through
a provider while recording observed state in a durable backend.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFile(cmd, opts); err != nil {
				return WrapExitError(ExitCommandError, "config", err)
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Parallelism < 1 {
				return NewExitError(ExitCommandError, "parallelism must be at least 1")
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	pf.StringVar(&opts.State, "state", state.DefaultPath, "state backend DSN (sqlite://path or postgres://...)")
	pf.StringVar(&opts.Provider, "provider", "memory", "provider implementation")
	pf.IntVar(&opts.Parallelism, "parallelism", engine.DefaultParallelism, "max concurrent provider calls during apply")
	pf.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))

	return cmd
}

// applyConfigFile merges config-file values beneath the flags: a file value
// applies only where the user left the flag untouched.
func applyConfigFile(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Discover(opts.ConfigPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if cfg.State != "" && !flags.Changed("state") {
		opts.State = cfg.State
	}
	if cfg.Provider != "" && !flags.Changed("provider") {
		opts.Provider = cfg.Provider
	}
	if cfg.Parallelism > 0 && !flags.Changed("parallelism") {
		opts.Parallelism = cfg.Parallelism
	}
	if cfg.Format != "" && !flags.Changed("format") {
		opts.Format = cfg.Format
	}
	if cfg.Verbose && !flags.Changed("verbose") {
		opts.Verbose = true
	}
	return nil
}

// Main executes the CLI and returns the process exit code. Errors carrying
// an ExitError keep their code; anything else that escapes is a usage error
// from the flag parser.
func Main() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return ExitCommandError
	}
	return ExitSuccess
}
