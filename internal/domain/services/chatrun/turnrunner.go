package chatrun

import (
	"context"

	"chatrun/internal/domain/models/chatrun"
)

// TurnRunner executes one full turn from user input to terminal event,
// across possibly many tool iterations.
type TurnRunner interface {
	// RunTurn is the Turn Runner's public entry. Preconditions (session not
	// deleted, no active run) are enforced by the Session Hub before
	// calling. RunTurn installs the active-run record on session, and the
	// caller (Session Hub) is responsible for draining the next queued
	// message once RunTurn returns.
	RunTurn(ctx context.Context, session *chatrun.Session, req RunTurnRequest) (RunTurnResult, error)
}

// RunTurnRequest is the Turn Runner's input for one turn.
type RunTurnRequest struct {
	Text       string
	ResponseID string
	Trigger    string // chatrun.TriggerUser / TriggerSystem / TriggerCallback
	Agent      *chatrun.AgentDefinition

	// AgentExchangeID correlates an agent-to-agent sub-turn back to the
	// exchange that spawned it; empty for an ordinary user-driven turn.
	// When set, every Stream Handler emission for this turn carries it.
	AgentExchangeID string

	// ForwardChunksTo, when non-empty, is another session id that should
	// also receive this turn's tool_output_chunk broadcasts — the relay
	// that lets a caller session watch a sub-agent's tool activity live.
	ForwardChunksTo string
}

// RunTurnResult is returned once RunTurn's dispatch completes.
type RunTurnResult struct {
	Aborted bool

	// FinalText is the accumulated assistant text when the turn completed
	// normally (not cancelled).
	FinalText string
}
