package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/definium/defsearch/internal/index"
)

// Config tunes the orchestrator.
type Config struct {
	// Window is the debounce window for Submit (default: 300ms).
	Window time.Duration

	// MinQueryLength short-circuits shorter queries to an empty result
	// set without touching the engine (default: 2).
	MinQueryLength int

	// Delimiter splits advanced query strings into keywords (default: ";").
	Delimiter string

	// CacheSize bounds the result cache (default: 256 entries).
	CacheSize int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Window:         300 * time.Millisecond,
		MinQueryLength: 2,
		Delimiter:      ";",
		CacheSize:      256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = d.MinQueryLength
	}
	if c.Delimiter == "" {
		c.Delimiter = d.Delimiter
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	return c
}

// Request is a single search submission.
type Request struct {
	Query    string
	Options  index.Options
	Advanced string
	Logic    Logic
}

// Response is what the orchestrator publishes for a settled request.
// Seq orders responses by query start; consumers receive them already
// filtered to the latest submission.
type Response struct {
	Seq     uint64
	Query   string
	Results []*index.Result
	Err     error
}

// Orchestrator coalesces rapid query submissions into debounced engine
// searches. Each submission gets a monotonically increasing sequence
// number at submit time; a completed search publishes only if no newer
// submission exists, so stale results are dropped by query-start order
// rather than arrival order.
type Orchestrator struct {
	engine  index.Engine
	logger  *slog.Logger
	cfg     Config
	publish func(Response)
	cache   *lru.Cache[string, []*index.Result]

	mu        sync.Mutex
	timer     *time.Timer
	seq       uint64
	published uint64
	closed    bool
}

// New creates an orchestrator. The publish callback receives settled
// responses; it is invoked from timer goroutines and must be safe to
// call concurrently with Submit.
func New(engine index.Engine, cfg Config, logger *slog.Logger, publish func(Response)) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(Response) {}
	}

	cache, err := lru.New[string, []*index.Result](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	return &Orchestrator{
		engine:  engine,
		logger:  logger,
		cfg:     cfg,
		publish: publish,
		cache:   cache,
	}, nil
}

// Submit registers a query-text change. It restarts the debounce timer
// and returns the submission's sequence number. Short queries settle
// immediately with an empty result set and cancel any pending search.
func (o *Orchestrator) Submit(req Request) uint64 {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0
	}

	o.seq++
	seq := o.seq

	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	if tooShort(req.Query, o.cfg.MinQueryLength) {
		o.published = seq
		o.mu.Unlock()
		o.publish(Response{Seq: seq, Query: req.Query, Results: []*index.Result{}})
		return seq
	}

	o.timer = time.AfterFunc(o.cfg.Window, func() {
		o.run(seq, req)
	})
	o.mu.Unlock()
	return seq
}

// run executes the debounced search and publishes under last-writer-wins.
func (o *Orchestrator) run(seq uint64, req Request) {
	results, err := o.SearchNow(context.Background(), req)

	o.mu.Lock()
	if o.closed || seq < o.seq || seq <= o.published {
		o.mu.Unlock()
		if err == nil {
			o.logger.Debug("dropping superseded search result",
				slog.Uint64("seq", seq),
				slog.String("query", req.Query))
		}
		return
	}
	o.published = seq
	o.mu.Unlock()

	o.publish(Response{Seq: seq, Query: req.Query, Results: results, Err: err})
}

// SearchNow runs a search synchronously, bypassing the debounce but
// honoring the short-query rule, the result cache, and the advanced
// keyword filter.
func (o *Orchestrator) SearchNow(ctx context.Context, req Request) ([]*index.Result, error) {
	if tooShort(req.Query, o.cfg.MinQueryLength) {
		return []*index.Result{}, nil
	}

	key := o.cacheKey(req)
	if results, ok := o.cache.Get(key); ok {
		return results, nil
	}

	results, err := o.engine.Search(ctx, req.Query, req.Options)
	if err != nil {
		return nil, err
	}

	if filter := ParseAdvanced(req.Advanced, o.cfg.Delimiter, req.Logic); !filter.Empty() {
		results = filter.Apply(results)
	}

	o.cache.Add(key, results)
	return results, nil
}

// Invalidate drops all cached results. Call after the index generation
// changes.
func (o *Orchestrator) Invalidate() {
	o.cache.Purge()
}

// Close cancels any pending debounce. Further submissions are ignored.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// cacheKey includes the index generation so a rebuild naturally misses
// every prior entry even before Invalidate runs.
func (o *Orchestrator) cacheKey(req Request) string {
	fields := make([]string, len(req.Options.Fields))
	for i, f := range req.Options.Fields {
		fields[i] = string(f)
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s|%d|%s|%s|%s",
		o.engine.Generation(),
		req.Query,
		strings.Join(fields, ","),
		req.Options.Type,
		req.Options.CategoryID,
		req.Options.Limit,
		req.Advanced,
		req.Logic,
		o.cfg.Delimiter,
	)
}

func tooShort(query string, minLen int) bool {
	return len([]rune(strings.TrimSpace(query))) < minLen
}
