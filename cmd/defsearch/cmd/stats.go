package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
	"github.com/definium/defsearch/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store and index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runStats(cmd *cobra.Command, format string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	meta, err := a.Store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	idx := a.Engine.Stats()

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"definitionCount": meta.DefinitionCount,
			"categoryCount":   meta.CategoryCount,
			"lastUpdated":     meta.LastUpdated,
			"tokenCount":      idx.TokenCount,
			"generation":      idx.Generation,
			"ready":           a.Coordinator.Ready(),
		})
	}

	ui.NewRenderer(cmd.OutOrStdout()).Stats(meta, idx, a.Coordinator.Ready())
	return nil
}
