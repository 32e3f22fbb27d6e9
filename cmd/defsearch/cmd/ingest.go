package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
	"github.com/definium/defsearch/internal/ingest"
	"github.com/definium/defsearch/internal/ui"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	appendMode bool
	format     string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load definition sets from JSON files or zip archives",
		Long: `Ingest decodes the given .json files and .zip archives into the
document store and rebuilds the search index once afterwards.

By default prior content is replaced; use --append to accumulate sets
across multiple invocations. A malformed set is reported and skipped
without aborting the rest of the batch.

Examples:
  defsearch ingest definitions.json
  defsearch ingest --append extra-definitions.json
  defsearch ingest bundle.zip --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.appendMode, "append", "a", false, "Append to existing content instead of replacing")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string, opts ingestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	sets, err := ingest.ReadSets(ctx, paths, cfg.MaxSetBytes())
	if err != nil {
		return err
	}

	mode := ingest.ModeReplace
	if opts.appendMode {
		mode = ingest.ModeAppend
	}

	report, err := a.Coordinator.Run(ctx, sets, mode)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	ui.NewRenderer(cmd.OutOrStdout()).Report(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d sets failed", report.Failed, len(report.Sets))
	}
	return nil
}
