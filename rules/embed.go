// Package rules provides embedded default rule tables for the context-fusion
// core. YAML files in this directory define per-environment keyword rules and
// cross-feature interaction rules; both can be overridden by files on disk.
package rules

import _ "embed"

//go:embed environments.yaml
var environmentsYAML []byte

//go:embed interactions.yaml
var interactionsYAML []byte

// EnvironmentsYAML returns the embedded default environment rule tables.
func EnvironmentsYAML() []byte { return environmentsYAML }

// InteractionsYAML returns the embedded default cross-feature interaction rules.
func InteractionsYAML() []byte { return interactionsYAML }
