// Package ui renders search results, stats, and ingestion reports for
// the terminal, styled when stdout is a TTY and plain when piped.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/ingest"
	"github.com/definium/defsearch/internal/store"
)

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// StylesFor picks styled or plain rendering for the writer.
func StylesFor(w io.Writer) Styles {
	if IsTTY(w) && !DetectNoColor() {
		return DefaultStyles()
	}
	return NoColorStyles()
}

// Renderer writes human-readable output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer with auto-detected styling.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, styles: StylesFor(out)}
}

// NewRendererWithStyles creates a renderer with explicit styles.
func NewRendererWithStyles(out io.Writer, styles Styles) *Renderer {
	return &Renderer{out: out, styles: styles}
}

// Results renders a ranked result list.
func (r *Renderer) Results(results []*index.Result) {
	if len(results) == 0 {
		fmt.Fprintln(r.out, r.styles.Dim.Render("no results"))
		return
	}

	for i, res := range results {
		fmt.Fprintf(r.out, "%s %s  %s\n",
			r.styles.Dim.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Name.Render(res.Definition.Name),
			r.styles.Score.Render(fmt.Sprintf("(score %.1f)", res.Score)),
		)
		fmt.Fprintf(r.out, "    %s %s\n",
			r.styles.Category.Render(res.Definition.CategoryID),
			r.styles.Type.Render(string(res.Definition.Type)),
		)
		for _, m := range res.Matches {
			r.match(m)
		}
		fmt.Fprintln(r.out)
	}
}

func (r *Renderer) match(m index.Match) {
	position := ""
	if m.LineNumber > 0 {
		position = fmt.Sprintf("%d:%d ", m.LineNumber, m.Column)
	}
	snippet := strings.ReplaceAll(m.Snippet, "\n", " ")
	fmt.Fprintf(r.out, "    %s%s %s\n",
		r.styles.Position.Render(position),
		r.styles.Dim.Render("["+string(m.Field)+"]"),
		r.styles.Snippet.Render(snippet),
	)
}

// Stats renders store and index counters.
func (r *Renderer) Stats(meta *store.Metadata, idx *index.Stats, ready bool) {
	fmt.Fprintln(r.out, r.styles.Header.Render("defsearch stats"))
	fmt.Fprintf(r.out, "  definitions: %d\n", meta.DefinitionCount)
	fmt.Fprintf(r.out, "  categories:  %d\n", meta.CategoryCount)
	if !meta.LastUpdated.IsZero() {
		fmt.Fprintf(r.out, "  updated:     %s\n", meta.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(r.out, "  tokens:      %d\n", idx.TokenCount)
	fmt.Fprintf(r.out, "  generation:  %d\n", idx.Generation)
	if ready {
		fmt.Fprintf(r.out, "  search:      %s\n", "ready")
	} else {
		fmt.Fprintf(r.out, "  search:      %s\n", r.styles.Warning.Render("not ready"))
	}
}

// Report renders an ingestion run summary.
func (r *Renderer) Report(report *ingest.Report) {
	fmt.Fprintln(r.out, r.styles.Header.Render("ingestion "+report.RunID))
	for _, set := range report.Sets {
		if set.Error != "" {
			fmt.Fprintf(r.out, "  %s %s: %s\n",
				r.styles.Error.Render("FAIL"), set.Source, set.Error)
			continue
		}
		fmt.Fprintf(r.out, "  %s %s: %d definitions, %d categories\n",
			r.styles.Dim.Render("ok"), set.Source, set.Definitions, set.Categories)
	}
	fmt.Fprintf(r.out, "  total: %d definitions, %d categories, %d failed sets (%s)\n",
		report.Definitions, report.Categories, report.Failed,
		report.Duration.Round(time.Millisecond))
}

// Error renders a user-facing error line, with a retry hint for
// transient failures such as a held ingestion lock.
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.out, "%s %v\n", r.styles.Error.Render("error:"), err)
	if apperr.IsRetryable(err) {
		fmt.Fprintln(r.out, r.styles.Dim.Render("the operation may succeed if retried"))
	}
}
