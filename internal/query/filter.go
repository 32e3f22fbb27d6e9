package query

import (
	"strings"

	"github.com/definium/defsearch/internal/extract"
	"github.com/definium/defsearch/internal/index"
)

// Logic selects how advanced keywords combine.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// AdvancedFilter is a keyword refinement applied on top of primary
// search results. It never touches the index; it only narrows the
// result list by plain substring containment.
type AdvancedFilter struct {
	Keywords []string
	Logic    Logic
}

// ParseAdvanced splits raw on the delimiter into lowercase-trimmed
// keywords, dropping empties.
func ParseAdvanced(raw, delimiter string, logic Logic) AdvancedFilter {
	if logic != LogicOr {
		logic = LogicAnd
	}
	f := AdvancedFilter{Logic: logic}
	for _, part := range strings.Split(raw, delimiter) {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" {
			continue
		}
		f.Keywords = append(f.Keywords, kw)
	}
	return f
}

// Empty reports whether the filter has no keywords and would pass
// everything through.
func (f AdvancedFilter) Empty() bool {
	return len(f.Keywords) == 0
}

// Apply keeps the results whose searchable text satisfies the keyword
// logic. The searchable text is the definition name, its extracted
// content, and every match snippet, joined and lowercased.
func (f AdvancedFilter) Apply(results []*index.Result) []*index.Result {
	if f.Empty() {
		return results
	}

	kept := make([]*index.Result, 0, len(results))
	for _, r := range results {
		if f.matches(searchableText(r)) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (f AdvancedFilter) matches(text string) bool {
	if f.Logic == LogicOr {
		for _, kw := range f.Keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}
	for _, kw := range f.Keywords {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

func searchableText(r *index.Result) string {
	var b strings.Builder
	b.WriteString(r.Definition.Name)
	b.WriteString("\n")
	b.WriteString(extract.Content(r.Definition))
	for _, m := range r.Matches {
		b.WriteString("\n")
		b.WriteString(m.Snippet)
	}
	return strings.ToLower(b.String())
}
