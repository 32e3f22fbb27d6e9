package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
)

func newClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all ingested definitions and drop the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClear(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runClear(cmd *cobra.Command, force bool) error {
	if !force {
		fmt.Fprint(cmd.OutOrStdout(), "Remove all ingested definitions? [y/N] ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := a.Coordinator.Clear(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "store cleared")
	return nil
}
