package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/extract"
	"github.com/definium/defsearch/internal/store"
)

// FTSEngine backs the Engine contract with a SQLite FTS5 virtual table.
// Tokenized text lives in SQLite; definitions and extracted content are
// kept in memory for hydration and position computation, the same way
// the memory engine does it.
//
// FTS5 matches whole terms with optional prefix expansion, so mid-token
// substrings that the memory engine finds may be missed here. The code
// tokenizer indexes camelCase and snake_case parts as separate terms,
// which covers the common cases.
type FTSEngine struct {
	mu        sync.RWMutex
	db        *sql.DB
	cfg       Config
	stopWords map[string]struct{}

	ready      bool
	generation uint64

	docs    map[string]*store.Definition
	order   map[string]int
	content map[string]string
}

var _ Engine = (*FTSEngine)(nil)

var ftsSchema = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS fts_definitions USING fts5(
		doc_id UNINDEXED,
		name,
		content,
		category,
		type,
		tokenize = 'unicode61 tokenchars ''_'''
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS fts_definitions_vocab
		USING fts5vocab('fts_definitions', 'row')`,
}

// NewFTSEngine opens (or creates) the FTS index database at path. An
// empty path uses an in-memory database.
func NewFTSEngine(path string, cfg Config) (*FTSEngine, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}

	dsn := ":memory:"
	if path != "" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.StorageUnavailable("open fts index database", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.StorageUnavailable("connect to fts index database", err)
	}
	for _, stmt := range ftsSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, apperr.StorageUnavailable("create fts index schema", err)
		}
	}

	return &FTSEngine{
		db:        db,
		cfg:       cfg,
		stopWords: store.BuildStopWordMap(cfg.StopWords),
	}, nil
}

// Build reindexes the full definition set in a single transaction. A
// failed rebuild marks the engine not ready; the prior index must not
// keep looking usable.
func (e *FTSEngine) Build(ctx context.Context, definitions []*store.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.buildLocked(ctx, definitions); err != nil {
		e.ready = false
		return err
	}
	return nil
}

func (e *FTSEngine) buildLocked(ctx context.Context, definitions []*store.Definition) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StorageError("begin index rebuild", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM fts_definitions"); err != nil {
		return apperr.StorageError("clear fts index", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO fts_definitions (doc_id, name, content, category, type)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.StorageError("prepare fts insert", err)
	}
	defer insert.Close()

	docs := make(map[string]*store.Definition, len(definitions))
	order := make(map[string]int, len(definitions))
	content := make(map[string]string, len(definitions))

	for _, def := range definitions {
		if def == nil || def.ID == "" {
			continue
		}
		if _, exists := docs[def.ID]; !exists {
			order[def.ID] = len(order)
		}
		docs[def.ID] = def
		text := extract.Content(def)
		content[def.ID] = text

		// FTS5's unicode61 tokenizer does not split camelCase, so each
		// column stores the expanded token stream instead of raw text.
		_, err := insert.ExecContext(ctx, def.ID,
			e.tokenStream(def.Name),
			e.tokenStream(text),
			e.tokenStream(def.CategoryID),
			e.tokenStream(string(def.Type)),
		)
		if err != nil {
			return apperr.Wrap(apperr.ErrCodeIndexFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.StorageError("commit index rebuild", err)
	}

	e.docs = docs
	e.order = order
	e.content = content
	e.ready = true
	e.generation++
	return nil
}

// tokenStream renders text as a space-joined token list for an FTS column.
func (e *FTSEngine) tokenStream(text string) string {
	tokens := store.FilterStopWords(store.Tokenize(text), e.stopWords)
	return strings.Join(tokens, " ")
}

// Search runs per-field prefix MATCH queries and merges by field priority.
func (e *FTSEngine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, apperr.IndexNotReady("search invoked before a successful index build")
	}

	tokens := store.FilterStopWords(store.Tokenize(query), e.stopWords)
	if len(tokens) == 0 {
		return []*Result{}, nil
	}

	fields := normalizeFields(opts.Fields)
	limit := clampLimit(opts.Limit, e.cfg)

	type hit struct {
		field Field
		score float64
	}
	best := make(map[string]hit)

	for _, field := range fields {
		match := buildFTSMatch(field, tokens)
		rows, err := e.db.QueryContext(ctx, `
			SELECT doc_id, bm25(fts_definitions)
			FROM fts_definitions
			WHERE fts_definitions MATCH ?`, match)
		if err != nil {
			return nil, apperr.StorageError("query fts index", err)
		}
		for rows.Next() {
			var id string
			var rank float64
			if err := rows.Scan(&id, &rank); err != nil {
				rows.Close()
				return nil, apperr.StorageError("scan fts result", err)
			}
			if _, taken := best[id]; !taken {
				// bm25() returns lower-is-better negative ranks.
				best[id] = hit{field: field, score: -rank}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, apperr.StorageError("iterate fts results", err)
		}
		rows.Close()
	}

	results := make([]*Result, 0, len(best))
	for id, h := range best {
		def := e.docs[id]
		if def == nil {
			continue
		}
		if opts.Type != "" && def.Type != opts.Type {
			continue
		}
		if opts.CategoryID != "" && def.CategoryID != opts.CategoryID {
			continue
		}
		results = append(results, &Result{
			Definition: def,
			Score:      h.score,
			Matches: []Match{
				buildMatch(h.field, fieldText(def, h.field, e.content[id]), query),
			},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return e.order[results[i].Definition.ID] < e.order[results[j].Definition.ID]
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// buildFTSMatch renders tokens as an ANDed per-column prefix query,
// e.g. `name : ("select"* AND "user"*)`.
func buildFTSMatch(field Field, tokens []string) string {
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = fmt.Sprintf(`"%s"*`, strings.ReplaceAll(tok, `"`, `""`))
	}
	return fmt.Sprintf("%s : (%s)", field, strings.Join(terms, " AND "))
}

// Clear drops all indexed rows and marks the engine not ready. The
// generation advances so result caches keyed by it stop serving the
// cleared index.
func (e *FTSEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, _ = e.db.Exec("DELETE FROM fts_definitions")
	e.docs = nil
	e.order = nil
	e.content = nil
	e.ready = false
	e.generation++
}

// Ready reports whether a successful Build has happened since the last Clear.
func (e *FTSEngine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Generation returns the current index generation.
func (e *FTSEngine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Stats returns current index statistics. Token counts come from the
// FTS vocabulary table.
func (e *FTSEngine) Stats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var tokenCount int
	row := e.db.QueryRow("SELECT count(*) FROM fts_definitions_vocab")
	if err := row.Scan(&tokenCount); err != nil {
		tokenCount = 0
	}

	return &Stats{
		DefinitionCount: len(e.docs),
		TokenCount:      tokenCount,
		Generation:      e.generation,
	}
}

// Close releases the underlying database handle.
func (e *FTSEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}
