package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definium/defsearch/internal/store"
)

func TestWatcher_IngestsNewFiles(t *testing.T) {
	// Given: a watcher over an empty directory
	rig := newTestRig(t)
	dir := t.TempDir()

	w, err := NewWatcher(rig.coordinator, 50*time.Millisecond, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// When: a document set file appears
	writeSetFile(t, dir, "drop.json", &Set{
		Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
	})

	// Then: the set is appended and search becomes ready
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if count, err := rig.store.Count(context.Background()); err == nil && count == 1 {
			assert.True(t, rig.coordinator.Ready())
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timeout waiting for watched file to be ingested")
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	rig := newTestRig(t)
	dir := t.TempDir()

	w, err := NewWatcher(rig.coordinator, 20*time.Millisecond, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	writeSetFile(t, dir, "notes.txt", &Set{
		Definitions: []*store.Definition{definition("d1", "c", "One", "SELECT 1")},
	})

	time.Sleep(200 * time.Millisecond)
	count, err := rig.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
