package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groundworklabs/groundwork/internal/engine"
	"github.com/groundworklabs/groundwork/internal/provider"
	"github.com/groundworklabs/groundwork/internal/state"
)

// session bundles what a reconciliation command needs: the engine over an
// open state backend, and a context that cancels on SIGINT/SIGTERM.
type session struct {
	engine   *engine.Engine
	backend  state.Backend
	registry *provider.Registry
	ctx      context.Context

	cancel context.CancelFunc
	sigCh  chan os.Signal
}

// openSession wires the logger, state backend, provider, and engine for one
// command invocation. The caller must close() the session.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	setupLogging(opts)

	backend, err := state.Open(opts.State)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open state backend", err)
	}

	reg := provider.DefaultRegistry()
	var prov provider.Provider
	switch opts.Provider {
	case "memory":
		prov = provider.NewMemory(reg)
	default:
		backend.Close()
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("unknown provider %q (known: memory)", opts.Provider))
	}

	eng := engine.New(backend, prov, reg, engine.WithParallelism(opts.Parallelism))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, cancelling pass", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return &session{
		engine:   eng,
		backend:  backend,
		registry: reg,
		ctx:      ctx,
		cancel:   cancel,
		sigCh:    sigCh,
	}, nil
}

func (s *session) close() {
	signal.Stop(s.sigCh)
	s.cancel()
	if err := s.backend.Close(); err != nil {
		slog.Error("error closing state backend", "error", err)
	}
}

func setupLogging(opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
