package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/attr"
	"github.com/groundworklabs/groundwork/internal/state"
)

// ShowOptions holds options for the show command.
type ShowOptions struct {
	*RootOptions
}

// stateView is the JSON shape of the full recorded state.
type stateView struct {
	Serial  int64        `json:"serial"`
	Lineage string       `json:"lineage"`
	Records []recordView `json:"records"`
}

type recordView struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Identity     string   `json:"identity"`
	Inputs       attr.Map `json:"inputs"`
	Outputs      attr.Map `json:"outputs,omitempty"`
	InputsHash   string   `json:"inputs_hash"`
	Protect      bool     `json:"protect,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Seq          int64    `json:"seq"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show recorded state",
		Long: `Show prints the recorded state: every record, or a single one by
logical name. Only the state backend is read; the provider is never
consulted, so what you see is the last applied observation.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args)
		},
	}

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command, args []string) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	setupLogging(opts.RootOptions)

	backend, err := state.Open(opts.State)
	if err != nil {
		return WrapExitError(ExitCommandError, "open state backend", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			slog.Error("error closing state backend", "error", cerr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		rec, err := backend.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				_ = formatter.Error("not_found", fmt.Sprintf("no record for %q", args[0]), nil)
				return WrapExitError(ExitFailure, "record not found", err)
			}
			return passError(formatter, err)
		}
		if formatter.JSON() {
			return formatter.Success(viewOfRecord(*rec))
		}
		return renderRecord(formatter.Writer, *rec)
	}

	snap, err := backend.ReadSnapshot(ctx)
	if err != nil {
		return passError(formatter, err)
	}

	if formatter.JSON() {
		views := make([]recordView, 0, len(snap.Records))
		for _, rec := range snap.Records {
			views = append(views, viewOfRecord(rec))
		}
		return formatter.Success(stateView{
			Serial:  snap.Serial,
			Lineage: snap.Lineage,
			Records: views,
		})
	}

	w := formatter.Writer
	if len(snap.Records) == 0 {
		fmt.Fprintln(w, "No resources recorded.")
		return nil
	}
	fmt.Fprintf(w, "Serial:  %d\nLineage: %s\nRecords: %d\n\n",
		snap.Serial, snap.Lineage, len(snap.Records))
	for i, rec := range snap.Records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := renderRecord(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func viewOfRecord(rec state.Record) recordView {
	return recordView{
		Name:         rec.Name,
		Type:         rec.Type,
		Identity:     rec.Identity,
		Inputs:       rec.Inputs,
		Outputs:      rec.Outputs,
		InputsHash:   rec.InputsHash,
		Protect:      rec.Protect,
		Dependencies: rec.Dependencies,
		Seq:          rec.Seq,
	}
}

func renderRecord(w io.Writer, rec state.Record) error {
	fmt.Fprintf(w, "%s (%s) id=%s", rec.Name, rec.Type, rec.Identity)
	if rec.Protect {
		fmt.Fprint(w, " [protected]")
	}
	fmt.Fprintln(w)

	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  inputs:  %s\n", inputs)
	if len(rec.Outputs) > 0 {
		outputs, err := json.Marshal(rec.Outputs)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  outputs: %s\n", outputs)
	}
	if len(rec.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends: %s\n", strings.Join(rec.Dependencies, ", "))
	}
	fmt.Fprintf(w, "  seq:     %d\n", rec.Seq)
	return nil
}
