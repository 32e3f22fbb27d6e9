// Package index builds an inverted, tokenized search index over the full
// definition set and answers ranked, position-annotated queries.
//
// The index is rebuilt wholesale on every ingestion event and never
// partially mutated: definition churn is rare (bulk ingestion, not
// per-document edits) and stale postings are worse than rebuild latency
// at this scale.
package index

import (
	"context"

	"github.com/definium/defsearch/internal/store"
)

// Field identifies an indexed definition field.
type Field string

const (
	FieldName     Field = "name"
	FieldContent  Field = "content"
	FieldCategory Field = "category"
	FieldType     Field = "type"
)

// fieldPriority is the dedup preference order: a definition matching in
// several fields is reported once, for the earliest field listed here.
var fieldPriority = []Field{FieldName, FieldContent, FieldCategory, FieldType}

// DefaultFields are the fields searched when a query does not pick any.
var DefaultFields = []Field{FieldName, FieldContent}

// ParseField converts a string to a Field.
func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldName, FieldContent, FieldCategory, FieldType:
		return Field(s), true
	}
	return "", false
}

// Options configures a search query.
type Options struct {
	// Limit caps the result count. Zero means the engine default.
	Limit int

	// Fields restricts matching to the given fields (default: name+content).
	Fields []Field

	// Type post-filters results by definition type when non-empty.
	Type store.DefinitionType

	// CategoryID post-filters results by category when non-empty.
	CategoryID string
}

// Match is the representative occurrence reported for a result.
type Match struct {
	// Field is the field the match was found in.
	Field Field

	// Snippet is a human-readable excerpt around the occurrence,
	// ellipsis-trimmed when truncated.
	Snippet string

	// LineNumber and Column are 1-based and refer to the matched field's
	// text. Both are zero when the query matched tokens but has no
	// literal substring occurrence; the snippet is then a plain head of
	// the text.
	LineNumber int
	Column     int

	// MatchLength is the length of the queried text in characters.
	MatchLength int
}

// Result is one ranked search hit, hydrated with the full definition.
type Result struct {
	Definition *store.Definition
	Score      float64
	Matches    []Match
}

// Stats describes the current index contents.
type Stats struct {
	DefinitionCount int
	TokenCount      int
	Generation      uint64
}

// Config configures an engine.
type Config struct {
	// DefaultLimit applies when Options.Limit is zero (default: 50).
	DefaultLimit int

	// MaxLimit caps any requested limit (default: 200).
	MaxLimit int

	// StopWords are excluded from indexing and querying. Empty by
	// default; SQL keywords are real search terms in this domain.
	StopWords []string
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 50,
		MaxLimit:     200,
	}
}

// Engine is the index builder / search engine contract.
//
// Build discards all prior state; concurrent Build calls are not
// supported and callers must serialize them. Search against a built
// index is safe for concurrent use.
type Engine interface {
	// Build tokenizes and indexes the full definition set, replacing any
	// prior index, and records an id → definition hydration map.
	Build(ctx context.Context, definitions []*store.Definition) error

	// Search returns ranked results for the query. Searching before a
	// successful Build fails with ERR_502_INDEX_NOT_READY.
	Search(ctx context.Context, query string, opts Options) ([]*Result, error)

	// Clear drops the index and hydration map; Search fails until the
	// next successful Build.
	Clear()

	// Ready reports whether Build has completed successfully since the
	// last Clear.
	Ready() bool

	// Generation increments on every successful Build, letting callers
	// key caches to an index state.
	Generation() uint64

	// Stats returns current index statistics.
	Stats() *Stats

	// Close releases engine resources.
	Close() error
}

// normalizeFields returns the requested fields in canonical priority
// order, falling back to the defaults.
func normalizeFields(requested []Field) []Field {
	if len(requested) == 0 {
		return DefaultFields
	}
	want := make(map[Field]bool, len(requested))
	for _, f := range requested {
		want[f] = true
	}
	fields := make([]Field, 0, len(requested))
	for _, f := range fieldPriority {
		if want[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// clampLimit applies default and maximum limits from cfg.
func clampLimit(limit int, cfg Config) int {
	if limit <= 0 {
		return cfg.DefaultLimit
	}
	if limit > cfg.MaxLimit {
		return cfg.MaxLimit
	}
	return limit
}

// fieldText returns the text indexed for a field of a definition.
// Content text comes from the engine's extraction cache so positions are
// computed against the exact bytes that were indexed.
func fieldText(def *store.Definition, field Field, content string) string {
	switch field {
	case FieldName:
		return def.Name
	case FieldContent:
		return content
	case FieldCategory:
		return def.CategoryID
	case FieldType:
		return string(def.Type)
	}
	return ""
}
