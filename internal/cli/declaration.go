package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/decl"
	"github.com/groundworklabs/groundwork/internal/graph"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadDeclaration loads and validates the declaration under dir. The error
// is already reported through the formatter when non-nil; the caller just
// returns it.
func loadDeclaration(dir string, reg *provider.Registry, formatter *OutputFormatter) (*decl.Declaration, error) {
	d, errs := decl.LoadDir(dir, decl.LoadModeFailFast)
	if len(errs) > 0 {
		err := errs[0]
		code := decl.ErrCodeGeneric
		var loadErr *decl.LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		_ = formatter.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "declaration failed to load", err)
	}

	if verrs := decl.Validate(d, reg); len(verrs) > 0 {
		if formatter.JSON() {
			_ = formatter.Error("invalid_declaration",
				fmt.Sprintf("%d validation error(s)", len(verrs)),
				map[string]any{"errors": verrs})
		} else {
			for _, ve := range verrs {
				fmt.Fprintf(formatter.errWriter(), "  %s\n", ve.Error())
			}
		}
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("declaration invalid: %d error(s)", len(verrs)))
	}

	return d, nil
}

// passError reports a pass-level engine failure and maps it onto an exit
// code. Lock contention and corrupt state are operational failures; a
// declaration the graph builder rejects is a command error.
func passError(formatter *OutputFormatter, err error) error {
	switch {
	case state.IsLockContention(err):
		_ = formatter.Error("lock_contention", err.Error(), nil)
		return WrapExitError(ExitFailure, "state is locked", err)
	case state.IsCorruption(err):
		_ = formatter.Error("state_corruption", err.Error(), nil)
		return WrapExitError(ExitFailure, "state failed verification", err)
	case graph.IsCycle(err) || graph.IsUnresolvedReference(err):
		_ = formatter.Error("invalid_declaration", err.Error(), nil)
		return WrapExitError(ExitCommandError, "declaration is not applicable", err)
	default:
		_ = formatter.Error("pass_failed", err.Error(), nil)
		return WrapExitError(ExitFailure, "pass failed", err)
	}
}
