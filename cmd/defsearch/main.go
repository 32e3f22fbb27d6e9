// Package main provides the entry point for the defsearch CLI.
package main

import (
	"os"

	"github.com/definium/defsearch/cmd/defsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
