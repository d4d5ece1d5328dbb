// Package agent resolves an AgentDefinition's configuration into the
// concrete Reader the Turn Runner should drive for a turn, and loads agent
// definitions from YAML.
package agent

import (
	"fmt"
	"strings"
)

// ReaderKind identifies which in-process HTTP backend handles a model
// string, for agents configured with provider=in_process.
type ReaderKind string

const (
	ReaderKindAnthropic ReaderKind = "anthropic"
	ReaderKindLorem     ReaderKind = "lorem"
)

// ResolveReaderKind infers the in-process backend from a model's name
// prefix. Unlike the provider identity on the agent definition (which
// selects in_process vs. a CLI), this only matters once in_process has
// already been selected and we need to know which HTTP client to build.
func ResolveReaderKind(model string) (ReaderKind, error) {
	if model == "" {
		return "", fmt.Errorf("model string cannot be empty")
	}

	modelLower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(modelLower, "claude-"):
		return ReaderKindAnthropic, nil
	case strings.HasPrefix(modelLower, "lorem-"):
		return ReaderKindLorem, nil
	default:
		return "", fmt.Errorf("unable to infer in-process reader for model: %s", model)
	}
}
