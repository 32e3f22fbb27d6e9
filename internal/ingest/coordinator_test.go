package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/query"
	"github.com/definium/defsearch/internal/store"
)

type testRig struct {
	store       store.DocumentStore
	engine      *index.MemoryEngine
	coordinator *Coordinator
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := index.NewMemoryEngine(index.DefaultConfig())
	t.Cleanup(func() { _ = engine.Close() })

	return &testRig{
		store:       st,
		engine:      engine,
		coordinator: NewCoordinator(st, engine, nil, ""),
	}
}

func category(id, name string) *store.Category {
	return &store.Category{ID: id, Name: name, DisplayName: name}
}

func definition(id, categoryID, name, query string) *store.Definition {
	return &store.Definition{
		ID:         id,
		Version:    1,
		CategoryID: categoryID,
		Type:       store.TypeSQL,
		Name:       name,
		Payload:    store.Payload{Query: query},
	}
}

func TestCoordinator_ReplaceRun(t *testing.T) {
	// Given: two sets in one replace run
	rig := newTestRig(t)
	ctx := context.Background()
	sets := []*Set{
		{
			Source:     "a.json",
			Categories: []*store.Category{category("catA", "Reports")},
			Definitions: []*store.Definition{
				definition("d1", "catA", "ListUsers", "SELECT * FROM users"),
				definition("d2", "catA", "CountUsers", "SELECT count(*) FROM users"),
			},
		},
		{
			Source:     "b.json",
			Categories: []*store.Category{category("catB", "Tools")},
			Definitions: []*store.Definition{
				definition("d3", "catB", "ListOrders", "SELECT * FROM orders"),
			},
		},
	}

	// When: the run completes
	report, err := rig.coordinator.Run(ctx, sets, ModeReplace)

	// Then: both sets landed, the index was rebuilt exactly once
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.True(t, report.IndexBuilt)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.Definitions)
	assert.Equal(t, 2, report.Categories)
	assert.Equal(t, uint64(1), rig.engine.Generation())
	assert.True(t, rig.coordinator.Ready())

	count, err := rig.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := rig.engine.Search(ctx, "orders", index.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d3", results[0].Definition.ID)
}

func TestCoordinator_ReplaceDropsPriorGeneration(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.coordinator.Run(ctx, []*Set{{
		Definitions: []*store.Definition{definition("old", "c", "OldQuery", "SELECT legacy FROM t")},
	}}, ModeReplace)
	require.NoError(t, err)

	_, err = rig.coordinator.Run(ctx, []*Set{{
		Definitions: []*store.Definition{definition("new", "c", "NewQuery", "SELECT fresh FROM t")},
	}}, ModeReplace)
	require.NoError(t, err)

	count, err := rig.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := rig.engine.Search(ctx, "legacy", index.Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCoordinator_AppendKeepsExisting(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.coordinator.Run(ctx, []*Set{{
		Definitions: []*store.Definition{definition("d1", "c", "First", "SELECT a FROM t")},
	}}, ModeReplace)
	require.NoError(t, err)

	_, err = rig.coordinator.Run(ctx, []*Set{{
		Definitions: []*store.Definition{definition("d2", "c", "Second", "SELECT b FROM t")},
	}}, ModeAppend)
	require.NoError(t, err)

	count, err := rig.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCoordinator_MalformedSetDoesNotAbortRun(t *testing.T) {
	// Given: a malformed set between two good ones
	rig := newTestRig(t)
	ctx := context.Background()
	sets := []*Set{
		{Source: "good1", Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")}},
		{Source: "broken", Definitions: []*store.Definition{{Type: store.TypeSQL, Name: "no id"}}},
		{Source: "good2", Definitions: []*store.Definition{definition("d2", "c", "Two", "SELECT 2")}},
	}

	report, err := rig.coordinator.Run(ctx, sets, ModeReplace)

	// Then: the good sets land and the failure is recorded per-set
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Sets, 3)
	assert.Empty(t, report.Sets[0].Error)
	assert.NotEmpty(t, report.Sets[1].Error)
	assert.Empty(t, report.Sets[2].Error)
	assert.True(t, report.IndexBuilt)

	count, err := rig.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCoordinator_EmptyRunLeavesEngineNotReady(t *testing.T) {
	rig := newTestRig(t)

	report, err := rig.coordinator.Run(context.Background(), nil, ModeReplace)

	require.NoError(t, err)
	assert.False(t, report.IndexBuilt)
	assert.False(t, rig.coordinator.Ready())
}

func TestCoordinator_Clear(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.coordinator.Run(ctx, []*Set{{
		Categories:  []*store.Category{category("c", "Cat")},
		Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
	}}, ModeReplace)
	require.NoError(t, err)
	require.True(t, rig.coordinator.Ready())

	require.NoError(t, rig.coordinator.Clear(ctx))

	count, err := rig.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	categories, err := rig.store.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)

	assert.False(t, rig.coordinator.Ready())
}

func TestCoordinator_RebuildRestoresSearchOverPersistedData(t *testing.T) {
	// Given: a store with content but a fresh engine, as after restart
	rig := newTestRig(t)
	ctx := context.Background()
	require.NoError(t, rig.store.BulkReplace(ctx,
		[]*store.Category{category("c", "Cat")},
		[]*store.Definition{definition("d1", "c", "ListUsers", "SELECT * FROM users")}))
	require.False(t, rig.engine.Ready())

	require.NoError(t, rig.coordinator.Rebuild(ctx))

	assert.True(t, rig.coordinator.Ready())
	results, err := rig.engine.Search(ctx, "users", index.Options{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCoordinator_FailedRebuildDropsReadiness(t *testing.T) {
	// Given: a successful run leaving search ready
	rig := newTestRig(t)
	_, err := rig.coordinator.Run(context.Background(), []*Set{{
		Categories:  []*store.Category{category("c", "Cat")},
		Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
	}}, ModeReplace)
	require.NoError(t, err)
	require.True(t, rig.coordinator.Ready())

	// When: a rebuild fails
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, rig.coordinator.Rebuild(ctx))

	// Then: readiness reflects the failure
	assert.False(t, rig.coordinator.Ready())
}

func TestCoordinator_ClearStopsCachedSearches(t *testing.T) {
	// Given: an orchestrator caching results over the coordinator's engine
	rig := newTestRig(t)
	ctx := context.Background()
	orch, err := query.New(rig.engine, query.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	rig.coordinator.OnIndexChanged(orch.Invalidate)

	_, err = rig.coordinator.Run(ctx, []*Set{{
		Categories:  []*store.Category{category("c", "Cat")},
		Definitions: []*store.Definition{definition("d1", "c", "ListOrders", "SELECT * FROM orders")},
	}}, ModeReplace)
	require.NoError(t, err)

	results, err := orch.SearchNow(ctx, query.Request{Query: "orders"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// When: the store and index are cleared
	require.NoError(t, rig.coordinator.Clear(ctx))

	// Then: the cached result is gone and search reports not ready
	_, err = orch.SearchNow(ctx, query.Request{Query: "orders"})
	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeIndexNotReady, apperr.GetCode(err))
}

func TestCoordinator_ConcurrentRunsAreLockedOut(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ingest.lock")
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	engine := index.NewMemoryEngine(index.DefaultConfig())
	coordinator := NewCoordinator(st, engine, nil, lockPath)

	// Another process holds the lock.
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = other.Unlock() })

	_, err = coordinator.Run(context.Background(), []*Set{{
		Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
	}}, ModeReplace)

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeStoreLocked, apperr.GetCode(err))
}

func TestValidateSet(t *testing.T) {
	tests := []struct {
		name    string
		set     *Set
		wantErr bool
	}{
		{
			name:    "nil set",
			set:     nil,
			wantErr: true,
		},
		{
			name:    "empty set",
			set:     &Set{},
			wantErr: true,
		},
		{
			name: "category without id",
			set: &Set{
				Categories: []*store.Category{{Name: "anonymous"}},
			},
			wantErr: true,
		},
		{
			name: "definition without name",
			set: &Set{
				Definitions: []*store.Definition{{ID: "d1", Type: store.TypeSQL}},
			},
			wantErr: true,
		},
		{
			name: "definition without type",
			set: &Set{
				Definitions: []*store.Definition{{ID: "d1", Name: "n"}},
			},
			wantErr: true,
		},
		{
			name: "valid",
			set: &Set{
				Categories:  []*store.Category{category("c", "Cat")},
				Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSet(tt.set)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.ErrCodeMalformedInput, apperr.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
