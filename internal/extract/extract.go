// Package extract maps a definition's typed payload to the plain text
// that gets indexed and displayed.
package extract

import (
	"encoding/json"

	"github.com/definium/defsearch/internal/store"
)

// Content returns the indexable/displayable text for a definition.
//
// It is pure and total: sql definitions yield their query verbatim,
// javascript definitions their script verbatim, and everything else a
// deterministic JSON rendering of the payload. json.Marshal sorts map
// keys, so the fallback is byte-identical across calls; line/column
// offsets computed against the output stay valid between index time and
// display time.
func Content(def *store.Definition) string {
	switch def.Type {
	case store.TypeSQL:
		if def.Payload.Query != "" {
			return def.Payload.Query
		}
	case store.TypeJavaScript:
		if def.Payload.Script != "" {
			return def.Payload.Script
		}
	}

	return fallback(def.Payload)
}

// fallback serializes the full payload with stable key order so even
// unrecognized definition types have some searchable text.
func fallback(p store.Payload) string {
	m := make(map[string]any)
	if p.Query != "" {
		m["query"] = p.Query
	}
	if p.Script != "" {
		m["script"] = p.Script
	}
	for k, v := range p.Raw {
		m[k] = v
	}

	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
