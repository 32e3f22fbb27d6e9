package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/store"
)

// Mode selects how the first document set lands in the store.
type Mode string

const (
	// ModeReplace clears prior content; the first set replaces, any
	// following sets append on top.
	ModeReplace Mode = "replace"

	// ModeAppend upserts every set into existing content.
	ModeAppend Mode = "append"
)

// Set is one decoded document set, ready for ingestion.
type Set struct {
	// Source names where the set came from, for reporting.
	Source string `json:"source,omitempty"`

	Categories  []*store.Category   `json:"categories"`
	Definitions []*store.Definition `json:"definitions"`
}

// SetResult records the outcome of a single set within a run.
type SetResult struct {
	Source      string `json:"source"`
	Categories  int    `json:"categories"`
	Definitions int    `json:"definitions"`
	Error       string `json:"error,omitempty"`
}

// Report summarizes an ingestion run.
type Report struct {
	RunID       string        `json:"runId"`
	Mode        Mode          `json:"mode"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Sets        []SetResult   `json:"sets"`
	Failed      int           `json:"failed"`
	IndexBuilt  bool          `json:"indexBuilt"`
	Definitions int           `json:"definitions"`
	Categories  int           `json:"categories"`
}

// Coordinator is the only path that mutates the document store and the
// search index, keeping the two consistent: store mutation strictly
// precedes index rebuild, and the index is rebuilt exactly once per run.
type Coordinator struct {
	store    store.DocumentStore
	engine   index.Engine
	logger   *slog.Logger
	lockPath string

	// invalidate is called after every index rebuild or clear so query
	// layers can drop cached results. Optional.
	invalidate func()
}

// NewCoordinator creates a coordinator. lockPath guards against
// concurrent ingestion runs across processes; empty disables locking.
func NewCoordinator(st store.DocumentStore, engine index.Engine, logger *slog.Logger, lockPath string) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    st,
		engine:   engine,
		logger:   logger,
		lockPath: lockPath,
	}
}

// Run ingests the given sets sequentially. A malformed or failed set is
// recorded in the report and does not abort the remaining sets. The
// index is rebuilt once, after the last set; a rebuild failure leaves
// the engine not ready and is returned as the run error.
func (c *Coordinator) Run(ctx context.Context, sets []*Set, mode Mode) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
	}

	unlock, err := c.acquireLock()
	if err != nil {
		return report, err
	}
	defer unlock()

	log := c.logger.With(slog.String("run_id", report.RunID), slog.String("mode", string(mode)))
	log.Info("ingestion started", slog.Int("sets", len(sets)))

	replaced := false
	mutated := false
	for i, set := range sets {
		result := SetResult{Source: setSource(set, i)}

		if err := validateSet(set); err != nil {
			result.Error = err.Error()
			report.Sets = append(report.Sets, result)
			report.Failed++
			log.Warn("skipping malformed set", slog.String("source", result.Source), slog.Any("error", err))
			continue
		}

		result.Categories = len(set.Categories)
		result.Definitions = len(set.Definitions)

		var storeErr error
		if mode == ModeReplace && !replaced {
			storeErr = c.store.BulkReplace(ctx, set.Categories, set.Definitions)
			replaced = storeErr == nil
		} else {
			storeErr = c.store.BulkAppend(ctx, set.Categories, set.Definitions)
		}
		if storeErr != nil {
			result.Error = storeErr.Error()
			report.Sets = append(report.Sets, result)
			report.Failed++
			log.Error("set ingestion failed", slog.String("source", result.Source), slog.Any("error", storeErr))
			continue
		}

		mutated = true
		report.Sets = append(report.Sets, result)
	}

	if mutated {
		if err := c.rebuild(ctx); err != nil {
			report.Duration = time.Since(report.StartedAt)
			log.Error("index rebuild failed", slog.Any("error", err))
			return report, err
		}
		report.IndexBuilt = true
	}

	if stats, err := c.store.Stats(ctx); err == nil {
		report.Definitions = stats.DefinitionCount
		report.Categories = stats.CategoryCount
	}

	report.Duration = time.Since(report.StartedAt)
	log.Info("ingestion finished",
		slog.Int("definitions", report.Definitions),
		slog.Int("categories", report.Categories),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// OnIndexChanged registers a callback invoked after every rebuild or
// clear. Wire the query layer's cache invalidation here.
func (c *Coordinator) OnIndexChanged(fn func()) {
	c.invalidate = fn
}

func (c *Coordinator) indexChanged() {
	if c.invalidate != nil {
		c.invalidate()
	}
}

// rebuild regenerates the index from the store's full document set. On
// failure the engine is cleared so readiness never outlives a broken
// rebuild, whichever step failed.
func (c *Coordinator) rebuild(ctx context.Context) error {
	definitions, err := c.store.AllDefinitions(ctx)
	if err == nil {
		err = c.engine.Build(ctx, definitions)
	}
	if err != nil {
		c.engine.Clear()
		return err
	}
	c.indexChanged()
	return nil
}

// Rebuild re-indexes the current store contents without ingesting
// anything. Used at startup to restore search over persisted data.
func (c *Coordinator) Rebuild(ctx context.Context) error {
	return c.rebuild(ctx)
}

// Clear empties the store and drops the index.
func (c *Coordinator) Clear(ctx context.Context) error {
	unlock, err := c.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.engine.Clear()
	c.indexChanged()
	return nil
}

// Ready reports whether search is usable.
func (c *Coordinator) Ready() bool {
	return c.engine.Ready()
}

// acquireLock takes the cross-process ingestion lock. Returns a
// release func, or a retryable error when another run holds the lock.
func (c *Coordinator) acquireLock() (func(), error) {
	if c.lockPath == "" {
		return func() {}, nil
	}

	lock := flock.New(c.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, apperr.StorageError("acquire ingestion lock", err)
	}
	if !locked {
		return nil, apperr.New(apperr.ErrCodeStoreLocked,
			fmt.Sprintf("another ingestion holds the lock at %s", c.lockPath), nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("releasing ingestion lock failed", slog.Any("error", err))
		}
	}, nil
}

func setSource(set *Set, i int) string {
	if set != nil && set.Source != "" {
		return set.Source
	}
	return fmt.Sprintf("set-%d", i+1)
}

// validateSet checks the structural requirements of a document set.
func validateSet(set *Set) error {
	if set == nil {
		return apperr.MalformedInput("document set is nil", nil)
	}
	if len(set.Definitions) == 0 && len(set.Categories) == 0 {
		return apperr.MalformedInput("document set is empty", nil)
	}
	for i, cat := range set.Categories {
		if cat == nil || cat.ID == "" {
			return apperr.MalformedInput(fmt.Sprintf("category %d is missing an id", i), nil)
		}
	}
	for i, def := range set.Definitions {
		switch {
		case def == nil || def.ID == "":
			return apperr.MalformedInput(fmt.Sprintf("definition %d is missing an id", i), nil)
		case def.Name == "":
			return apperr.MalformedInput(fmt.Sprintf("definition %q is missing a name", def.ID), nil)
		case def.Type == "":
			return apperr.MalformedInput(fmt.Sprintf("definition %q is missing a type", def.ID), nil)
		}
	}
	return nil
}
