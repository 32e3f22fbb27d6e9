package index

import (
	"context"
	"sort"
	"strings"
	"sync"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/extract"
	"github.com/definium/defsearch/internal/store"
)

// MemoryEngine is the default Engine: explicit per-field postings kept
// in process memory and rebuilt wholesale on every ingestion.
type MemoryEngine struct {
	mu        sync.RWMutex
	cfg       Config
	stopWords map[string]struct{}

	ready      bool
	generation uint64

	// postings maps field -> token -> definition id -> term frequency.
	postings map[Field]map[string]map[string]int

	// docs hydrates result ids back into full definitions; order keeps
	// build order for deterministic tie-breaking.
	docs  map[string]*store.Definition
	order []string

	// content caches extractor output per id so Search computes
	// positions against the exact text that was indexed.
	content map[string]string
}

var _ Engine = (*MemoryEngine)(nil)

// NewMemoryEngine creates an in-memory search engine.
func NewMemoryEngine(cfg Config) *MemoryEngine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	return &MemoryEngine{
		cfg:       cfg,
		stopWords: store.BuildStopWordMap(cfg.StopWords),
	}
}

// Build tokenizes and indexes the full definition set, replacing any
// prior index. The new index is assembled off-lock and swapped in whole,
// so concurrent Search calls never observe a half-built state.
func (e *MemoryEngine) Build(ctx context.Context, definitions []*store.Definition) error {
	postings := make(map[Field]map[string]map[string]int, len(fieldPriority))
	for _, f := range fieldPriority {
		postings[f] = make(map[string]map[string]int)
	}
	docs := make(map[string]*store.Definition, len(definitions))
	order := make([]string, 0, len(definitions))
	content := make(map[string]string, len(definitions))

	for _, def := range definitions {
		if err := ctx.Err(); err != nil {
			// A failed rebuild must not leave a stale index looking usable.
			e.mu.Lock()
			e.ready = false
			e.mu.Unlock()
			return apperr.Wrap(apperr.ErrCodeIndexFailed, err)
		}
		if def == nil || def.ID == "" {
			continue
		}

		if _, exists := docs[def.ID]; !exists {
			order = append(order, def.ID)
		}
		docs[def.ID] = def
		content[def.ID] = extract.Content(def)

		for _, field := range fieldPriority {
			text := fieldText(def, field, content[def.ID])
			tokens := store.FilterStopWords(store.Tokenize(text), e.stopWords)
			for _, tok := range tokens {
				byDoc := postings[field][tok]
				if byDoc == nil {
					byDoc = make(map[string]int)
					postings[field][tok] = byDoc
				}
				byDoc[def.ID]++
			}
		}
	}

	e.mu.Lock()
	e.postings = postings
	e.docs = docs
	e.order = order
	e.content = content
	e.ready = true
	e.generation++
	e.mu.Unlock()

	return nil
}

// Search answers a ranked query against the built index.
func (e *MemoryEngine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, apperr.IndexNotReady("search invoked before a successful index build")
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeInternal, err)
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

	// Fields arrive in priority order; the first field that matches a
	// definition claims it.
	for _, field := range fields {
		fieldPostings := e.postings[field]
		matched := make(map[string]int)
		score := make(map[string]float64)

		for _, qt := range tokens {
			seen := make(map[string]bool)
			for tok, byDoc := range fieldPostings {
				// Substring-capable token matching: the query token may
				// be any part of an indexed token.
				if !strings.Contains(tok, qt) {
					continue
				}
				for id, freq := range byDoc {
					score[id] += float64(freq)
					if !seen[id] {
						seen[id] = true
						matched[id]++
					}
				}
			}
		}

		for id, count := range matched {
			// Every query token must match somewhere in the field.
			if count != len(tokens) {
				continue
			}
			if _, taken := best[id]; !taken {
				best[id] = hit{field: field, score: score[id]}
			}
		}
	}

	// Collect in build order, then rank by score; SliceStable keeps
	// insertion order for ties.
	results := make([]*Result, 0, len(best))
	for _, id := range e.order {
		h, ok := best[id]
		if !ok {
			continue
		}
		def := e.docs[id]
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
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Clear drops the index and hydration map. The generation advances so
// result caches keyed by it stop serving the cleared index.
func (e *MemoryEngine) Clear() {
	e.mu.Lock()
	e.postings = nil
	e.docs = nil
	e.order = nil
	e.content = nil
	e.ready = false
	e.generation++
	e.mu.Unlock()
}

// Ready reports whether a successful Build has happened since the last Clear.
func (e *MemoryEngine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Generation returns the current index generation.
func (e *MemoryEngine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Stats returns current index statistics.
func (e *MemoryEngine) Stats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens := make(map[string]struct{})
	for _, fieldPostings := range e.postings {
		for tok := range fieldPostings {
			tokens[tok] = struct{}{}
		}
	}

	return &Stats{
		DefinitionCount: len(e.docs),
		TokenCount:      len(tokens),
		Generation:      e.generation,
	}
}

// Close releases engine resources. The memory engine only drops state.
func (e *MemoryEngine) Close() error {
	e.Clear()
	return nil
}
