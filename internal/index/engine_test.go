package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/store"
)

func sqlDef(id, categoryID, name, query string) *store.Definition {
	return &store.Definition{
		ID:         id,
		Version:    1,
		CategoryID: categoryID,
		Type:       store.TypeSQL,
		Name:       name,
		Payload:    store.Payload{Query: query},
	}
}

func scriptDef(id, categoryID, name, script string) *store.Definition {
	return &store.Definition{
		ID:         id,
		Version:    1,
		CategoryID: categoryID,
		Type:       store.TypeJavaScript,
		Name:       name,
		Payload:    store.Payload{Script: script},
	}
}

func testDefinitions() []*store.Definition {
	return []*store.Definition{
		sqlDef("d1", "reports", "ListActiveUsers", "SELECT id, name FROM users WHERE active = 1"),
		sqlDef("d2", "reports", "CountOrders", "SELECT count(*) FROM orders"),
		scriptDef("d3", "tools", "formatTimestamp", "return new Date(value).toISOString()"),
	}
}

func newBuiltEngine(t *testing.T) *MemoryEngine {
	t.Helper()
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.Build(context.Background(), testDefinitions()))
	return eng
}

func TestMemoryEngine_SearchBeforeBuild(t *testing.T) {
	eng := NewMemoryEngine(DefaultConfig())

	_, err := eng.Search(context.Background(), "users", Options{})

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeIndexNotReady, apperr.GetCode(err))
	assert.False(t, eng.Ready())
}

func TestMemoryEngine_BuildAndSearch(t *testing.T) {
	eng := newBuiltEngine(t)

	results, err := eng.Search(context.Background(), "users", Options{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].Definition.ID)
	assert.True(t, eng.Ready())
}

func TestMemoryEngine_SubstringTokenMatch(t *testing.T) {
	eng := newBuiltEngine(t)

	// "rder" is a mid-token fragment of "orders".
	results, err := eng.Search(context.Background(), "rder", Options{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].Definition.ID)
}

func TestMemoryEngine_CamelCasePartsMatch(t *testing.T) {
	eng := newBuiltEngine(t)

	results, err := eng.Search(context.Background(), "timestamp", Options{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d3", results[0].Definition.ID)
}

func TestMemoryEngine_FieldPriorityDedup(t *testing.T) {
	// "orders" appears in both the name and the content of one
	// definition; the result must carry a single name-field match.
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	defs := []*store.Definition{
		sqlDef("d1", "reports", "OrdersByDay", "SELECT day, count(*) FROM orders GROUP BY day"),
	}
	require.NoError(t, eng.Build(context.Background(), defs))

	results, err := eng.Search(context.Background(), "orders", Options{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, FieldName, results[0].Matches[0].Field)
}

func TestMemoryEngine_AllQueryTokensMustMatch(t *testing.T) {
	eng := newBuiltEngine(t)

	// "users" matches d1 but "orders" does not, so d1 is excluded.
	results, err := eng.Search(context.Background(), "users orders", Options{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryEngine_TypeFilter(t *testing.T) {
	eng := newBuiltEngine(t)

	results, err := eng.Search(context.Background(), "count", Options{Type: store.TypeSQL})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].Definition.ID)

	results, err = eng.Search(context.Background(), "count", Options{Type: store.TypeJavaScript})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryEngine_CategoryFilter(t *testing.T) {
	eng := newBuiltEngine(t)

	results, err := eng.Search(context.Background(), "select", Options{CategoryID: "reports"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = eng.Search(context.Background(), "select", Options{CategoryID: "tools"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryEngine_LimitClamping(t *testing.T) {
	eng := NewMemoryEngine(Config{DefaultLimit: 2, MaxLimit: 3})
	t.Cleanup(func() { _ = eng.Close() })
	defs := []*store.Definition{
		sqlDef("d1", "c", "q1", "SELECT shared FROM t1"),
		sqlDef("d2", "c", "q2", "SELECT shared FROM t2"),
		sqlDef("d3", "c", "q3", "SELECT shared FROM t3"),
		sqlDef("d4", "c", "q4", "SELECT shared FROM t4"),
	}
	require.NoError(t, eng.Build(context.Background(), defs))

	results, err := eng.Search(context.Background(), "shared", Options{})
	require.NoError(t, err)
	assert.Len(t, results, 2, "zero limit uses the default")

	results, err = eng.Search(context.Background(), "shared", Options{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, results, 3, "requested limit is capped at the max")
}

func TestMemoryEngine_MatchPosition(t *testing.T) {
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	defs := []*store.Definition{
		sqlDef("d1", "c", "positions", "line1\nline2 needle here\n"),
	}
	require.NoError(t, eng.Build(context.Background(), defs))

	results, err := eng.Search(context.Background(), "needle", Options{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0].Matches[0]
	assert.Equal(t, FieldContent, m.Field)
	assert.Equal(t, 2, m.LineNumber)
	assert.Equal(t, 7, m.Column)
	assert.Equal(t, len("needle"), m.MatchLength)
	assert.Contains(t, m.Snippet, "needle")
}

func TestMemoryEngine_TokenMatchWithoutLiteralOccurrence(t *testing.T) {
	// Both query tokens match parts of the camelCase name, but the raw
	// query string never occurs literally, so no position is reported.
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	defs := []*store.Definition{
		scriptDef("d1", "c", "getUserById", "return db.load(id)"),
	}
	require.NoError(t, eng.Build(context.Background(), defs))

	results, err := eng.Search(context.Background(), "user id", Options{Fields: []Field{FieldName}})

	require.NoError(t, err)
	require.Len(t, results, 1)
	m := results[0].Matches[0]
	assert.Zero(t, m.LineNumber)
	assert.Zero(t, m.Column)
	assert.NotEmpty(t, m.Snippet)
}

func TestMemoryEngine_RankingByFrequency(t *testing.T) {
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	defs := []*store.Definition{
		sqlDef("once", "c", "q1", "SELECT widget FROM a"),
		sqlDef("twice", "c", "q2", "SELECT widget FROM widget"),
	}
	require.NoError(t, eng.Build(context.Background(), defs))

	results, err := eng.Search(context.Background(), "widget", Options{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "twice", results[0].Definition.ID)
	assert.Equal(t, "once", results[1].Definition.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryEngine_RebuildReplacesIndex(t *testing.T) {
	eng := newBuiltEngine(t)

	require.NoError(t, eng.Build(context.Background(), []*store.Definition{
		sqlDef("new", "c", "fresh", "SELECT fresh FROM things"),
	}))

	results, err := eng.Search(context.Background(), "users", Options{})
	require.NoError(t, err)
	assert.Empty(t, results, "old generation must be gone after rebuild")

	results, err = eng.Search(context.Background(), "fresh", Options{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryEngine_GenerationAndStats(t *testing.T) {
	eng := NewMemoryEngine(DefaultConfig())
	t.Cleanup(func() { _ = eng.Close() })
	assert.Zero(t, eng.Generation())

	require.NoError(t, eng.Build(context.Background(), testDefinitions()))
	assert.Equal(t, uint64(1), eng.Generation())

	require.NoError(t, eng.Build(context.Background(), testDefinitions()))
	assert.Equal(t, uint64(2), eng.Generation())

	stats := eng.Stats()
	assert.Equal(t, 3, stats.DefinitionCount)
	assert.Positive(t, stats.TokenCount)
	assert.Equal(t, uint64(2), stats.Generation)
}

func TestMemoryEngine_Clear(t *testing.T) {
	eng := newBuiltEngine(t)

	eng.Clear()

	assert.False(t, eng.Ready())
	_, err := eng.Search(context.Background(), "users", Options{})
	assert.Equal(t, apperr.ErrCodeIndexNotReady, apperr.GetCode(err))
	assert.Zero(t, eng.Stats().DefinitionCount)
}

func TestMemoryEngine_ClearBumpsGeneration(t *testing.T) {
	eng := newBuiltEngine(t)
	before := eng.Generation()

	eng.Clear()

	// Caches key results by generation; a clear must not leave them valid.
	assert.Greater(t, eng.Generation(), before)
}

func TestMemoryEngine_FailedRebuildLeavesNotReady(t *testing.T) {
	// Given: a built, ready engine
	eng := newBuiltEngine(t)
	require.True(t, eng.Ready())

	// When: a rebuild fails mid-flight
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := eng.Build(ctx, testDefinitions())
	require.Error(t, err)

	// Then: the engine no longer reports readiness
	assert.False(t, eng.Ready())
	_, err = eng.Search(context.Background(), "users", Options{})
	assert.Equal(t, apperr.ErrCodeIndexNotReady, apperr.GetCode(err))
}

func TestMemoryEngine_EmptyQueryTokens(t *testing.T) {
	eng := newBuiltEngine(t)

	// Punctuation-only input tokenizes to nothing.
	results, err := eng.Search(context.Background(), "(),;", Options{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryEngine_StopWordsExcluded(t *testing.T) {
	eng := NewMemoryEngine(Config{
		DefaultLimit: 50,
		MaxLimit:     200,
		StopWords:    []string{"select"},
	})
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.Build(context.Background(), testDefinitions()))

	results, err := eng.Search(context.Background(), "select", Options{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewEngine_BackendSelection(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{name: "memory backend", backend: BackendMemory},
		{name: "empty defaults to memory", backend: ""},
		{name: "fts backend", backend: BackendFTS},
		{name: "unknown backend", backend: "bleve", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := NewEngine(tt.backend, "", DefaultConfig())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.ErrCodeConfigInvalid, apperr.GetCode(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, eng)
			assert.NoError(t, eng.Close())
		})
	}
}
