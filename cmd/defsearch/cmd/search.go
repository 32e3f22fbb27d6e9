package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/definium/defsearch/internal/app"
	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/query"
	"github.com/definium/defsearch/internal/store"
	"github.com/definium/defsearch/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	defType    string
	categoryID string
	fields     []string
	advanced   string
	logic      string
	format     string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ingested definitions",
		Long: `Search runs a ranked full-text query over the ingested definitions.

Query tokens match anywhere inside indexed tokens, including camelCase
and snake_case parts, and every result carries a snippet with the
1-based line and column of the first literal occurrence.

Advanced mode refines the primary results with extra keywords,
separated by ';', combined with AND (default) or OR.

Examples:
  defsearch search "active users"
  defsearch search orders --type sql --limit 5
  defsearch search report --category monthly --fields name
  defsearch search users --advanced "select;active" --logic AND
  defsearch search users --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().StringVarP(&opts.defType, "type", "t", "", "Filter by definition type (sql, javascript)")
	cmd.Flags().StringVarP(&opts.categoryID, "category", "c", "", "Filter by category id")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil, "Fields to search: name, content, category, type")
	cmd.Flags().StringVar(&opts.advanced, "advanced", "", "Advanced keyword filter, ';'-separated")
	cmd.Flags().StringVar(&opts.logic, "logic", "AND", "Advanced keyword logic: AND, OR")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, text string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if n := len([]rune(strings.TrimSpace(text))); n < cfg.Search.MinQueryLength {
		return apperr.New(apperr.ErrCodeQueryTooShort,
			fmt.Sprintf("query needs at least %d characters, got %d", cfg.Search.MinQueryLength, n), nil)
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	req, err := buildRequest(text, opts)
	if err != nil {
		return err
	}

	results, err := a.Orchestrator.SearchNow(ctx, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	ui.NewRenderer(cmd.OutOrStdout()).Results(results)
	return nil
}

// buildRequest converts CLI flags into an orchestrator request.
func buildRequest(text string, opts searchOptions) (query.Request, error) {
	var fields []index.Field
	for _, raw := range opts.fields {
		field, ok := index.ParseField(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return query.Request{}, apperr.InvalidQuery(fmt.Sprintf("unknown field %q (want name, content, category, or type)", raw))
		}
		fields = append(fields, field)
	}

	logic := query.LogicAnd
	if strings.EqualFold(opts.logic, string(query.LogicOr)) {
		logic = query.LogicOr
	}

	return query.Request{
		Query: text,
		Options: index.Options{
			Limit:      opts.limit,
			Fields:     fields,
			Type:       store.DefinitionType(strings.ToLower(opts.defType)),
			CategoryID: opts.categoryID,
		},
		Advanced: opts.advanced,
		Logic:    logic,
	}, nil
}
