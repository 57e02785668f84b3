package cli

import (
	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/engine"
)

// PlanOptions holds options for the plan command.
type PlanOptions struct {
	*RootOptions
	Dir string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what applying the declaration would change",
		Long: `Plan loads the declaration, refreshes recorded state against the provider,
and prints the actions an apply would take. Nothing is mutated; the state
lease is still taken so a plan never interleaves with a running apply.`,
		Example: `  # Plan the declaration in the current directory
  groundwork plan

  # Plan a specific directory against a named state file
  groundwork plan -d infra/ --state sqlite://prod.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dir, "dir", "d", ".", "declaration directory")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
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

	plan, err := sess.engine.Plan(sess.ctx, d)
	if err != nil {
		return passError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(plan)
	}
	return engine.RenderText(formatter.Writer, plan)
}
