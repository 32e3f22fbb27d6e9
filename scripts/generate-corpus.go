//go:build ignore

// Package main generates a synthetic definition-set corpus for manual
// testing and benchmarking.
// Usage: go run scripts/generate-corpus.go -definitions 500 -output testdata/corpus.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numDefinitions = flag.Int("definitions", 500, "Number of definitions to generate")
	numCategories  = flag.Int("categories", 12, "Number of categories to spread them over")
	output         = flag.String("output", "testdata/corpus.json", "Output file")
	seed           = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var tables = []string{"users", "orders", "invoices", "products", "sessions", "payments", "audit_log", "accounts"}
var columns = []string{"id", "name", "status", "created_at", "total", "email", "region", "quantity"}
var verbs = []string{"List", "Count", "Find", "Aggregate", "Export", "Archive"}
var scripts = []string{
	"return rows.filter(r => r.status === 'active')",
	"return new Date(value).toISOString()",
	"return input.trim().toLowerCase()",
	"return items.reduce((sum, i) => sum + i.total, 0)",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	categories := make([]map[string]any, *numCategories)
	for i := range categories {
		categories[i] = map[string]any{
			"categoryId":   fmt.Sprintf("cat-%02d", i+1),
			"categoryName": fmt.Sprintf("Category %02d", i+1),
			"sortNumber":   i + 1,
			"displayName":  fmt.Sprintf("Category %02d", i+1),
		}
	}

	definitions := make([]map[string]any, *numDefinitions)
	for i := range definitions {
		table := tables[rng.Intn(len(tables))]
		verb := verbs[rng.Intn(len(verbs))]
		def := map[string]any{
			"definitionId": fmt.Sprintf("def-%05d", i+1),
			"version":      1,
			"categoryId":   fmt.Sprintf("cat-%02d", rng.Intn(*numCategories)+1),
			"sortNumber":   rng.Intn(1000),
		}

		if rng.Intn(4) == 0 {
			def["definitionType"] = "javascript"
			def["definitionName"] = fmt.Sprintf("format%s%d", table, i)
			def["payload"] = map[string]any{"script": scripts[rng.Intn(len(scripts))]}
		} else {
			col := columns[rng.Intn(len(columns))]
			def["definitionType"] = "sql"
			def["definitionName"] = fmt.Sprintf("%s%s%d", verb, table, i)
			def["payload"] = map[string]any{
				"query": fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
					col, table, col, col),
			}
		}
		definitions[i] = def
	}

	set := map[string]any{"categories": categories, "definitions": definitions}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d definitions in %d categories to %s\n",
		*numDefinitions, *numCategories, *output)
}
