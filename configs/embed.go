// Package configs provides the embedded configuration template for
// defsearch. Embedding at build time keeps the template available in
// every distribution, source builds and binary releases alike.
//
// The template is written by `defsearch config init` to
// <data_dir>/config.yaml; see internal/config for the load order.
package configs

import _ "embed"

// ConfigTemplate is the annotated default configuration file.
//
//go:embed config.example.yaml
var ConfigTemplate string
