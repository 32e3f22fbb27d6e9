package index

import (
	"fmt"

	apperr "github.com/definium/defsearch/internal/errors"
)

// Backend names accepted by NewEngine.
const (
	BackendMemory = "memory"
	BackendFTS    = "fts"
)

// NewEngine creates a search engine for the configured backend. The
// memory backend needs no path; the fts backend persists its index at
// path (empty path keeps it in memory).
func NewEngine(backend, path string, cfg Config) (Engine, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryEngine(cfg), nil
	case BackendFTS:
		return NewFTSEngine(path, cfg)
	default:
		return nil, apperr.New(apperr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown search backend %q (want %q or %q)", backend, BackendMemory, BackendFTS), nil)
	}
}
