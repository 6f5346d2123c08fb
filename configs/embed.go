// Package configs holds configuration templates embedded at build time, so
// the config init command works in any distribution of the binary.
package configs

import _ "embed"

// ExampleConfig is the annotated starter configuration.
//
//go:embed config.example.yaml
var ExampleConfig []byte
