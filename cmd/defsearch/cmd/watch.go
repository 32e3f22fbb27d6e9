package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
	"github.com/definium/defsearch/internal/ingest"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and ingest new definition files",
		Long: `Watch monitors a directory and appends any .json or .zip file that
appears or changes. Events are batched behind a debounce window, so a
multi-file copy triggers one ingestion run with a single index rebuild.

Runs until interrupted.

Example:
  defsearch watch ./exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}

	return cmd
}

func runWatch(cmd *cobra.Command, dir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	w, err := ingest.NewWatcher(a.Coordinator, cfg.WatchDebounce(), cfg.MaxSetBytes(), a.Logger)
	if err != nil {
		return err
	}
	defer w.Stop() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx, dir); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
