package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/engine"
)

// ApplyOptions holds options for the apply command.
type ApplyOptions struct {
	*RootOptions
	Dir         string
	AutoApprove bool
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the declaration",
		Long: `Apply plans the declaration and executes the plan under the state lease:
creates and updates in dependency order, replaces where an immutable
attribute changed, destroys for resources dropped from the declaration.
A failed node skips its dependents; independent nodes still apply.`,
		Example: `  # Show the plan and ask before applying
  groundwork apply -d infra/

  # Apply without a prompt, for CI
  groundwork apply -d infra/ --auto-approve --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dir, "dir", "d", ".", "declaration directory")
	cmd.Flags().BoolVar(&opts.AutoApprove, "auto-approve", false, "skip the confirmation prompt")

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	sess, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	d, err := loadDeclaration(opts.Dir, sess.registry, formatter)
	if err != nil {
		return err
	}

	if !opts.AutoApprove {
		plan, perr := sess.engine.Plan(sess.ctx, d)
		if perr != nil {
			return passError(formatter, perr)
		}
		if !formatter.JSON() {
			if err := engine.RenderText(formatter.Writer, plan); err != nil {
				return err
			}
		}
		if plan.HasChanges() {
			if !formatter.JSON() {
				fmt.Fprintln(formatter.Writer)
			}
			ok, cerr := confirm(cmd, formatter, "Apply these changes?")
			if cerr != nil {
				return WrapExitError(ExitCommandError, "read confirmation", cerr)
			}
			if !ok {
				return NewExitError(ExitFailure, "apply cancelled")
			}
		}
	}

	res, err := sess.engine.Apply(sess.ctx, d)
	if err != nil {
		return passError(formatter, err)
	}

	if err := renderResult(formatter, res, "Apply"); err != nil {
		return err
	}
	if !res.OK() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d node(s) failed, %d skipped", res.Failed, res.Skipped))
	}
	return nil
}

// confirm prompts for an explicit "yes" on the command's input stream. The
// prompt goes to stderr in JSON mode so it never corrupts the envelope.
func confirm(cmd *cobra.Command, formatter *OutputFormatter, prompt string) (bool, error) {
	w := formatter.Writer
	if formatter.JSON() {
		w = formatter.errWriter()
	}
	fmt.Fprintf(w, "%s Only %q will be accepted: ", prompt, "yes")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.TrimSpace(line) == "yes", nil
}
