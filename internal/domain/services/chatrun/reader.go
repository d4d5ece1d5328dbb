package chatrun

import (
	"context"

	"chatrun/internal/domain/models/chatrun"
)

// Reader is the uniform streaming contract both the CLI Stream Reader and
// the HTTP Stream Reader implement, consumed by the Turn Runner.
type Reader interface {
	// Run drives one reader invocation and returns once the stream
	// terminates, either by clean exit or because ctx (the turn's cancel
	// handle) fired. Events are delivered to onEvent in order; Run must
	// not return before the goroutine(s) delivering events have stopped.
	Run(ctx context.Context, req ReadRequest, onEvent func(chatrun.StreamEvent)) (ReadResult, error)
}

// ReadRequest carries everything a Reader needs for one invocation.
type ReadRequest struct {
	Messages []chatrun.ChatMessage
	Tools    []chatrun.ToolDefinition
	Model    string

	// SessionAttributes carries the prior CLI-issued session id / working
	// directory for CLI providers.
	SessionAttributes chatrun.SessionAttributes

	MaxTokens   int
	Temperature *float64
	Reasoning   string
}

// ReadResult is returned once a Reader invocation terminates.
type ReadResult struct {
	Aborted bool

	// AccumulatedText is the full text produced by this invocation.
	AccumulatedText string

	// ToolCalls is populated only by the HTTP Stream Reader — callers
	// that are CLI-driven observe tool activity purely through the
	// ToolCallStart/ToolResult stream events instead.
	ToolCalls []chatrun.ToolCallState

	// SessionID is a newly reported provider session identifier, if any.
	// No reader in this module sets it: the CLI reader reports session ids
	// through SessionInfo stream events instead.
	SessionID string

	// ProviderBlob is the opaque provider-native continuity token for the
	// assistant message this invocation produced, populated only by the
	// HTTP Stream Reader. nil for CLI
	// providers, which own their own transcript continuity instead.
	ProviderBlob []byte
}
