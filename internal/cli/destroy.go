package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/engine"
)

// DestroyOptions holds options for the destroy command.
type DestroyOptions struct {
	*RootOptions
	AutoApprove bool
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DestroyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy every recorded resource",
		Long: `Destroy tears down everything on record, dependents before their
dependencies. Destroy protection is honored: a protected resource fails
its destroy and whatever it depends on is kept too. The declaration is
not consulted; the recorded state alone drives the teardown.`,
		Example: `  # Review the teardown plan and confirm
  groundwork destroy

  # Tear down without a prompt
  groundwork destroy --auto-approve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AutoApprove, "auto-approve", false, "skip the confirmation prompt")

	return cmd
}

func runDestroy(opts *DestroyOptions, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	sess, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	if !opts.AutoApprove {
		plan, perr := sess.engine.PlanDestroy(sess.ctx)
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
			ok, cerr := confirm(cmd, formatter, "Destroy all recorded resources?")
			if cerr != nil {
				return WrapExitError(ExitCommandError, "read confirmation", cerr)
			}
			if !ok {
				return NewExitError(ExitFailure, "destroy cancelled")
			}
		}
	}

	res, err := sess.engine.Destroy(sess.ctx)
	if err != nil {
		return passError(formatter, err)
	}

	if err := renderResult(formatter, res, "Destroy"); err != nil {
		return err
	}
	if !res.OK() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d node(s) failed, %d skipped", res.Failed, res.Skipped))
	}
	return nil
}
