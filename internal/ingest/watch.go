package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperr "github.com/definium/defsearch/internal/errors"
)

// Watcher ingests new or changed .json and .zip files from a directory
// as they appear. Events for the same quiet period are batched behind a
// debounce window so a multi-file copy triggers one append run with a
// single index rebuild.
type Watcher struct {
	coordinator *Coordinator
	logger      *slog.Logger
	window      time.Duration
	maxSetBytes int64

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	fs     *fsnotify.Watcher
	stopCh chan struct{}
	stop   sync.Once
}

// NewWatcher creates a directory watcher feeding the coordinator.
// maxSetBytes caps each decoded set; zero uses DefaultMaxSetBytes.
func NewWatcher(coordinator *Coordinator, window time.Duration, maxSetBytes int64, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 500 * time.Millisecond
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	return &Watcher{
		coordinator: coordinator,
		logger:      logger,
		window:      window,
		maxSetBytes: maxSetBytes,
		pending:     make(map[string]struct{}),
		fs:          fs,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start watches dir until the context is cancelled or Stop is called.
// It blocks; run it from a dedicated goroutine when needed.
func (w *Watcher) Start(ctx context.Context, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve watch directory: %w", err)
	}
	if err := w.fs.Add(absDir); err != nil {
		return fmt.Errorf("watch %s: %w", absDir, err)
	}

	w.logger.Info("watching for document sets",
		slog.String("dir", absDir),
		slog.Duration("debounce", w.window))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if !ingestible(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		w.flush(ctx)
	})
	w.mu.Unlock()
}

// flush ingests the batched paths in append mode.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(paths)

	sets, err := ReadSets(ctx, paths, w.maxSetBytes)
	if err != nil {
		w.logger.Error("reading watched document sets failed",
			slog.Any("paths", paths), slog.Any("error", err))
		return
	}

	report, err := w.coordinator.Run(ctx, sets, ModeAppend)
	if err != nil {
		w.logger.Error("watched ingestion failed", slog.Any("error", err))
		// A fatal error (store unusable) will not heal on the next
		// event; stop instead of retrying forever.
		if apperr.IsFatal(err) {
			_ = w.Stop()
		}
		return
	}
	w.logger.Info("watched ingestion finished",
		slog.String("run_id", report.RunID),
		slog.Int("sets", len(report.Sets)),
		slog.Int("failed", report.Failed))
}

// Stop halts watching and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stop.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fs.Close()
	})
	return err
}

func ingestible(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".zip":
		return true
	}
	return false
}
