// Package store provides the persistent document store (SQLite) for user
// definitions and categories, plus the shared code-aware tokenizer.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a definition or category does not exist.
var ErrNotFound = errors.New("not found")

// DefinitionType identifies the kind of content a definition carries.
// Unknown values are tolerated and handled by the extractor fallback.
type DefinitionType string

const (
	TypeSQL        DefinitionType = "sql"
	TypeJavaScript DefinitionType = "javascript"
)

// Category is a named grouping of definitions, analogous to a folder.
type Category struct {
	ID             string            `json:"categoryId"`
	Name           string            `json:"categoryName"`
	SortNumber     int               `json:"sortNumber"`
	DisplayName    string            `json:"displayName"`
	LocalizedNames map[string]string `json:"localizedNames,omitempty"`
}

// Payload carries a definition's indexable content. Which field is
// populated is tagged by Definition.Type: Query for sql, Script for
// javascript, Raw for anything else.
type Payload struct {
	Query  string         `json:"query,omitempty"`
	Script string         `json:"script,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// Definition is a single searchable unit: a named, categorized piece of
// SQL or script content. Definitions are immutable once stored; a put
// with an existing ID overwrites.
type Definition struct {
	ID         string         `json:"definitionId"`
	Version    int            `json:"version"`
	CategoryID string         `json:"categoryId"`
	Type       DefinitionType `json:"definitionType"`
	Name       string         `json:"definitionName"`
	SortNumber int            `json:"sortNumber"`
	Payload    Payload        `json:"payload"`

	// Seq is the store-assigned insertion order, used to break
	// SortNumber ties stably. Preserved across overwrites.
	Seq int64 `json:"-"`
}

// Metadata holds display-only counters recomputed after every ingestion.
// Never used for correctness decisions.
type Metadata struct {
	DefinitionCount int
	CategoryCount   int
	LastUpdated     time.Time
}

// DocumentStore is the persistence contract for definitions and categories.
//
// Failure semantics: any I/O failure surfaces as a storage error with no
// partial-mutation guarantee beyond SQLite's transaction model; callers
// must treat a failed bulk operation as unknown state and may Clear to
// recover.
type DocumentStore interface {
	// BulkReplace clears all prior content then inserts the given sets in
	// one transaction, and recomputes metadata counters.
	BulkReplace(ctx context.Context, categories []*Category, definitions []*Definition) error

	// BulkAppend upserts into existing content without clearing.
	// Definitions overwrite by ID; categories merge by ID.
	BulkAppend(ctx context.Context, categories []*Category, definitions []*Definition) error

	// Clear removes all categories, definitions, and metadata.
	Clear(ctx context.Context) error

	// Categories returns all categories in unspecified order.
	Categories(ctx context.Context) ([]*Category, error)

	// DefinitionsByCategory returns definitions in the given category,
	// sorted ascending by sort number, ties broken by insertion order.
	DefinitionsByCategory(ctx context.Context, categoryID string) ([]*Definition, error)

	// Definition returns the definition with the given ID, or ErrNotFound.
	Definition(ctx context.Context, id string) (*Definition, error)

	// AllDefinitions returns the full definition set. This is the only
	// bulk read used to rebuild the search index.
	AllDefinitions(ctx context.Context) ([]*Definition, error)

	// Count returns the total definition count.
	Count(ctx context.Context) (int, error)

	// Stats returns the stored metadata counters.
	Stats(ctx context.Context) (*Metadata, error)

	// Close releases the underlying database handle.
	Close() error
}
