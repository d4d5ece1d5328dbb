package chatrun

import "encoding/json"

// EventType tags the recognized ChatEvent payload shapes.
type EventType string

const (
	EventTurnStart      EventType = "turn_start"
	EventUserMessage    EventType = "user_message"
	EventAssistantChunk EventType = "assistant_chunk"
	EventAssistantDone  EventType = "assistant_done"
	EventThinkingChunk  EventType = "thinking_chunk"
	EventThinkingDone   EventType = "thinking_done"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventToolInputChunk EventType = "tool_input_chunk"
	EventToolOutputChunk EventType = "tool_output_chunk"
	EventInterrupt      EventType = "interrupt"
	EventTurnEnd        EventType = "turn_end"
)

// transientEventTypes bypass persistence and go directly to broadcast.
var transientEventTypes = map[EventType]bool{
	EventToolInputChunk:  true,
	EventToolOutputChunk: true,
}

// IsTransient reports whether events of this type should never be persisted.
func (t EventType) IsTransient() bool {
	return transientEventTypes[t]
}

// ChatEvent is the on-the-wire persisted record. Persisted events within a
// session form a totally ordered sequence by append order; turn_start
// precedes turn_end within the same TurnID.
type ChatEvent struct {
	ID         string          `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	SessionID  string          `json:"session_id"`
	TurnID     string          `json:"turn_id,omitempty"`
	ResponseID string          `json:"response_id,omitempty"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// Turn-start trigger values.
const (
	TriggerUser     = "user"
	TriggerSystem   = "system"
	TriggerCallback = "callback"
)

type TurnStartPayload struct {
	Trigger string `json:"trigger"`
}

type UserMessagePayload struct {
	Text string `json:"text"`
}

type AssistantChunkPayload struct {
	Text string `json:"text"`
}

type AssistantDonePayload struct {
	Text string `json:"text"`
}

type ThinkingChunkPayload struct {
	Text string `json:"text"`
}

type ThinkingDonePayload struct {
	Text string `json:"text"`
}

type ToolCallPayload struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	ArgsJSON string `json:"args_json"`
}

type ToolResultEventPayload struct {
	CallID   string         `json:"call_id"`
	ToolName string         `json:"tool_name"`
	OK       bool           `json:"ok"`
	Result   interface{}    `json:"result,omitempty"`
	Error    *ToolErrorInfo `json:"error,omitempty"`
}

type ToolInputChunkPayload struct {
	CallID string `json:"call_id"`
	Delta  string `json:"delta"`
	Offset int    `json:"offset"`
}

type ToolOutputChunkPayload struct {
	CallID string `json:"call_id"`
	Chunk  string `json:"chunk"`
	Offset int    `json:"offset"`
	Stream string `json:"stream,omitempty"`
}

type InterruptPayload struct {
	Reason string `json:"reason"`
}

type TurnEndPayload struct {
	Reason string `json:"reason,omitempty"`
}

// EncodePayload marshals a typed payload for storage on a ChatEvent.
func EncodePayload(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// payloads are always one of the typed structs above; a marshal
		// failure here is a programming error, not a runtime condition.
		return json.RawMessage(`{}`)
	}
	return b
}
