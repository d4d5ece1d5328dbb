package chatrun

import "context"

// ActiveToolCall is the in-flight record for a tool call that has had
// ToolCallStart emitted but not yet ToolResult.
type ActiveToolCall struct {
	ToolName string
	ArgsJSON string
}

// ActiveRun is created when a turn begins and cleared when it ends.
type ActiveRun struct {
	ResponseID string
	TurnID     string

	AccumulatedText string
	ThinkingText    string

	Cancel context.CancelFunc

	ActiveToolCalls map[string]ActiveToolCall

	// ToolInputOffsets / ToolOutputOffsets track cumulative byte length
	// already emitted per callId, enforcing the chunk-monotonicity invariant
	// for tool_input_chunk / tool_output_chunk broadcasts.
	ToolInputOffsets  map[string]int
	ToolOutputOffsets map[string]int

	// TTSSession, if non-nil, receives forwarded text deltas; TTS errors
	// are swallowed so speech never blocks the turn.
	TTSSession TTSSession

	// AudioEndMs is the client-reported truncation point recorded by the
	// cancel handler when an audio end offset was supplied.
	AudioEndMs *int64

	OutputCancelled bool

	// AgentExchangeID correlates agent-to-agent sub-turns; included on every
	// stream-handler emission when non-empty.
	AgentExchangeID string

	// ForwardChunksTo is another session id whose connections should also
	// receive this run's tool_output_chunk broadcasts (agent-to-agent
	// streaming). Empty means no relay.
	ForwardChunksTo string

	ThinkingStarted bool
	ThinkingDone    bool
}

// TTSSession is the minimal streaming contract the orchestrator depends on
// for an attached text-to-speech backend (out of scope to implement here).
type TTSSession interface {
	ForwardDelta(delta string) error
	Cancel()
	Finalize() error
}

// NewActiveRun initializes a fresh ActiveRun for a turn.
func NewActiveRun(responseID, turnID string, cancel context.CancelFunc) *ActiveRun {
	return &ActiveRun{
		ResponseID:        responseID,
		TurnID:            turnID,
		Cancel:            cancel,
		ActiveToolCalls:   make(map[string]ActiveToolCall),
		ToolInputOffsets:  make(map[string]int),
		ToolOutputOffsets: make(map[string]int),
	}
}
