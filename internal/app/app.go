// Package app wires the defsearch services into one explicitly
// constructed application context. Nothing in here is a singleton;
// tests build an App per case over a temp directory.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/definium/defsearch/internal/config"
	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/ingest"
	"github.com/definium/defsearch/internal/logging"
	"github.com/definium/defsearch/internal/query"
	"github.com/definium/defsearch/internal/store"
)

// App owns the configured service instances and their shutdown order.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        store.DocumentStore
	Engine       index.Engine
	Coordinator  *ingest.Coordinator
	Orchestrator *query.Orchestrator

	logCleanup func()
}

// Options tweaks construction for callers that already configured
// pieces themselves.
type Options struct {
	// Logger overrides the file logger from the config. Tests pass one.
	Logger *slog.Logger

	// Publish receives settled orchestrator responses. Nil is fine for
	// callers that only use the synchronous search path.
	Publish func(query.Response)
}

// New builds the full service graph from the config. When the store
// already holds definitions from a prior run, the index is rebuilt up
// front so search is ready without re-ingesting.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		logCfg := logging.Config{
			Level:     cfg.Logging.Level,
			FilePath:  logging.DefaultLogPath(),
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
		}
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return nil, err
		}
		a.Logger = logger
		a.logCleanup = cleanup
	}

	if cfg.Paths.DataDir != "" {
		if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
			a.close()
			return nil, err
		}
	}

	st, err := store.NewSQLiteStore(cfg.StorePath())
	if err != nil {
		a.close()
		return nil, err
	}
	a.Store = st

	engine, err := index.NewEngine(cfg.Search.Backend, cfg.IndexPath(), index.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		StopWords:    cfg.Search.StopWords,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.Engine = engine

	a.Coordinator = ingest.NewCoordinator(st, engine, a.Logger, cfg.LockPath())

	orch, err := query.New(engine, query.Config{
		Window:         cfg.DebounceWindow(),
		MinQueryLength: cfg.Search.MinQueryLength,
		Delimiter:      cfg.Search.AdvancedDelimiter,
		CacheSize:      cfg.Search.CacheSize,
	}, a.Logger, opts.Publish)
	if err != nil {
		a.close()
		return nil, err
	}
	a.Orchestrator = orch
	a.Coordinator.OnIndexChanged(orch.Invalidate)

	if count, err := st.Count(ctx); err == nil && count > 0 {
		if err := a.Coordinator.Rebuild(ctx); err != nil {
			a.Logger.Warn("startup index rebuild failed", slog.Any("error", err))
		}
	}

	return a, nil
}

// Close shuts the services down in reverse construction order.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var firstErr error
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
	return firstErr
}
