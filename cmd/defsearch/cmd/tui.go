package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
	"github.com/definium/defsearch/internal/query"
	"github.com/definium/defsearch/internal/ui"
)

func newTUICmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive search prompt",
		Long: `TUI opens an interactive prompt where every keystroke re-submits the
query through the debouncing orchestrator; results update once typing
goes quiet. Filters given as flags apply to every submission.

Examples:
  defsearch tui
  defsearch tui --type sql --category reports
  defsearch tui --advanced "select;orders"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().StringVarP(&opts.defType, "type", "t", "", "Filter by definition type (sql, javascript)")
	cmd.Flags().StringVarP(&opts.categoryID, "category", "c", "", "Filter by category id")
	cmd.Flags().StringVar(&opts.advanced, "advanced", "", "Advanced keyword filter, ';'-separated")
	cmd.Flags().StringVar(&opts.logic, "logic", "AND", "Advanced keyword logic: AND, OR")

	return cmd
}

func runTUI(cmd *cobra.Command, opts searchOptions) error {
	if !ui.IsTTY(os.Stdout) {
		return fmt.Errorf("tui requires an interactive terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base, err := buildRequest("", opts)
	if err != nil {
		return err
	}

	// The orchestrator's publish hook and the TUI reference each other,
	// so the hook goes through an indirection filled in below.
	var tui *ui.SearchTUI
	a, err := app.New(cmd.Context(), cfg, app.Options{
		Publish: func(resp query.Response) {
			if tui != nil {
				tui.Forward(resp)
			}
		},
	})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if !a.Coordinator.Ready() {
		return fmt.Errorf("nothing ingested yet. Run 'defsearch ingest <files>' first")
	}

	tui = ui.NewSearchTUI(a.Orchestrator, base)
	return tui.Run()
}
