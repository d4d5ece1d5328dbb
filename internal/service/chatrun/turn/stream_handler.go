// Package turn implements the Turn Runner and Stream Handler: the
// components that drive one turn end to end and translate normalized
// stream events into client broadcasts and Event Sink appends.
package turn

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chatrun/internal/domain/models/chatrun"
	"chatrun/internal/service/chatrun/events"
)

// Broadcaster sends one ServerMessage to every live connection on a
// session. Implemented by the Session Hub; the Stream Handler depends on
// it only through this narrow interface, mirroring the Event Sink's own
// Broadcaster dependency.
type Broadcaster interface {
	BroadcastToSession(sessionID string, msg chatrun.ServerMessage)
}

// StreamHandler converts chatrun.StreamEvent values into client broadcasts
// and Event Sink appends, tracking per-call cumulative offsets and
// accumulating a turn's thinking and full text on the ActiveRun.
type StreamHandler struct {
	sink        *events.Sink
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewStreamHandler(sink *events.Sink, broadcaster Broadcaster, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{sink: sink, broadcaster: broadcaster, logger: logger}
}

// Handle dispatches one normalized stream event for the given active run,
// updating its accumulators and emitting the broadcasts/persisted events
// the event type obligates.
func (h *StreamHandler) Handle(ctx context.Context, sessionID string, run *chatrun.ActiveRun, ev chatrun.StreamEvent) {
	switch e := ev.(type) {
	case chatrun.TextDelta:
		h.emitTextDelta(ctx, sessionID, run, e.Delta, e.Cumulative)
	case chatrun.ThinkingStart:
		h.emitThinkingStart(ctx, sessionID, run)
	case chatrun.ThinkingDelta:
		h.emitThinkingDelta(ctx, sessionID, run, e.Delta)
	case chatrun.ThinkingDone:
		h.emitThinkingDone(ctx, sessionID, run, e.Text)
	case chatrun.ToolCallStart:
		h.emitToolCallStart(ctx, sessionID, run, e.CallID, e.ToolName, e.ArgsSoFar)
	case chatrun.ToolInputDelta:
		h.emitToolInputChunk(ctx, sessionID, run, e.CallID, e.ArgsDelta)
	case chatrun.ToolResult:
		h.emitToolResult(ctx, sessionID, run, e.CallID, e.ToolName, e.OK, e.Result, e.Err)
	case chatrun.ToolOutputDelta:
		h.emitToolOutputChunk(ctx, sessionID, run, e.CallID, e.ToolName, e.Chunk, e.Stream)
	case chatrun.SessionInfo:
		// Session continuity (CLISessionID/WorkingDir) is recorded by the
		// Turn Runner, which owns the session's Attributes; the Stream
		// Handler has no persisted-event obligation for this variant.
	case chatrun.StreamError:
		h.logger.Warn("stream error event", "session_id", sessionID, "code", e.Code, "message", e.Message)
	}
}

func (h *StreamHandler) emitTextDelta(ctx context.Context, sessionID string, run *chatrun.ActiveRun, delta, cumulative string) {
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerTextDeltaMessage{
		ResponseID:      run.ResponseID,
		Delta:           delta,
		AgentExchangeID: run.AgentExchangeID,
	})
	run.AccumulatedText = cumulative
	if run.TTSSession != nil {
		if err := run.TTSSession.ForwardDelta(delta); err != nil {
			h.logger.Warn("tts forward failed, swallowing", "session_id", sessionID, "error", err)
		}
	}
	h.append(ctx, sessionID, run, chatrun.EventAssistantChunk, chatrun.AssistantChunkPayload{Text: delta})
}

func (h *StreamHandler) emitThinkingStart(ctx context.Context, sessionID string, run *chatrun.ActiveRun) {
	if run.ThinkingStarted {
		return
	}
	run.ThinkingStarted = true
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerThinkingStartMessage{ResponseID: run.ResponseID, AgentExchangeID: run.AgentExchangeID})
}

func (h *StreamHandler) emitThinkingDelta(ctx context.Context, sessionID string, run *chatrun.ActiveRun, delta string) {
	h.emitThinkingStart(ctx, sessionID, run)
	run.ThinkingText += delta
	h.append(ctx, sessionID, run, chatrun.EventThinkingChunk, chatrun.ThinkingChunkPayload{Text: delta})
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerThinkingDeltaMessage{ResponseID: run.ResponseID, Delta: delta, AgentExchangeID: run.AgentExchangeID})
}

func (h *StreamHandler) emitThinkingDone(ctx context.Context, sessionID string, run *chatrun.ActiveRun, text string) {
	if run.ThinkingDone {
		return
	}
	run.ThinkingDone = true
	h.append(ctx, sessionID, run, chatrun.EventThinkingDone, chatrun.ThinkingDonePayload{Text: text})
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerThinkingDoneMessage{ResponseID: run.ResponseID, Text: text, AgentExchangeID: run.AgentExchangeID})
}

func (h *StreamHandler) emitToolCallStart(ctx context.Context, sessionID string, run *chatrun.ActiveRun, callID, toolName, argsSoFar string) {
	run.ActiveToolCalls[callID] = chatrun.ActiveToolCall{ToolName: toolName, ArgsJSON: argsSoFar}
	run.ToolInputOffsets[callID] = len(argsSoFar)

	h.append(ctx, sessionID, run, chatrun.EventToolCall, chatrun.ToolCallPayload{CallID: callID, ToolName: toolName, ArgsJSON: argsSoFar})
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerToolCallStartMessage{CallID: callID, ToolName: toolName, Arguments: argsSoFar, AgentExchangeID: run.AgentExchangeID})
}

// emitToolInputChunk is broadcast-only (transient): it never appends a
// persisted event; argument streaming is transient.
func (h *StreamHandler) emitToolInputChunk(ctx context.Context, sessionID string, run *chatrun.ActiveRun, callID, chunk string) {
	offset := run.ToolInputOffsets[callID]
	run.ToolInputOffsets[callID] = offset + len(chunk)

	if call, ok := run.ActiveToolCalls[callID]; ok {
		call.ArgsJSON += chunk
		run.ActiveToolCalls[callID] = call
	}

	h.appendTransient(ctx, sessionID, run, chatrun.EventToolInputChunk, chatrun.ToolInputChunkPayload{CallID: callID, Delta: chunk, Offset: offset})
}

func (h *StreamHandler) emitToolOutputChunk(ctx context.Context, sessionID string, run *chatrun.ActiveRun, callID, toolName, chunk string, stream chatrun.ToolOutputStream) {
	offset := run.ToolOutputOffsets[callID]
	run.ToolOutputOffsets[callID] = offset + len(chunk)

	h.appendTransient(ctx, sessionID, run, chatrun.EventToolOutputChunk, chatrun.ToolOutputChunkPayload{CallID: callID, Chunk: chunk, Offset: offset, Stream: string(stream)})

	// Relay to the configured peer session for agent-to-agent streaming: the
	// originating session already observes this chunk via the Event Sink's
	// ServerChatEventMessage broadcast above; ForwardChunksTo is a second,
	// direct broadcast to a different session that has no Event Sink entry
	// of its own for this run.
	if run.ForwardChunksTo != "" {
		h.broadcaster.BroadcastToSession(run.ForwardChunksTo, chatrun.ServerToolOutputChunkMessage{
			CallID:          callID,
			ToolName:        toolName,
			Chunk:           chunk,
			Offset:          offset,
			Stream:          string(stream),
			AgentExchangeID: run.AgentExchangeID,
		})
	}
}

func (h *StreamHandler) emitToolResult(ctx context.Context, sessionID string, run *chatrun.ActiveRun, callID, toolName string, ok bool, result interface{}, toolErr *chatrun.ToolErrorInfo) {
	// The cancel handler and a dying CLI reader can both synthesize a
	// result for the same call: the Hub resolves every active call the
	// moment cancel lands, while the reader's own synthesis only fires
	// after the subprocess is reaped, up to the full kill grace later.
	// Whichever path resolved the call first wins; a result for a call no
	// longer active is dropped so each callId persists exactly one
	// tool_result and clients never see a stale frame after turn close.
	if _, active := run.ActiveToolCalls[callID]; !active {
		return
	}
	delete(run.ActiveToolCalls, callID)
	delete(run.ToolInputOffsets, callID)
	delete(run.ToolOutputOffsets, callID)

	h.append(ctx, sessionID, run, chatrun.EventToolResult, chatrun.ToolResultEventPayload{CallID: callID, ToolName: toolName, OK: ok, Result: result, Error: toolErr})
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerToolResultMessage{CallID: callID, ToolName: toolName, OK: ok, Result: result, Error: toolErr, AgentExchangeID: run.AgentExchangeID})
}

// EmitErrorFrame broadcasts a client-visible error frame without touching
// the persisted log (error frames are not a persisted event type).
func (h *StreamHandler) EmitErrorFrame(sessionID, code, message string, fatal bool) {
	h.broadcaster.BroadcastToSession(sessionID, chatrun.ServerErrorMessage{Code: code, Message: message, Fatal: fatal})
}

func (h *StreamHandler) append(ctx context.Context, sessionID string, run *chatrun.ActiveRun, eventType chatrun.EventType, payload interface{}) {
	if err := h.sink.Append(ctx, sessionID, chatrun.ChatEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UnixMilli(),
		SessionID:  sessionID,
		TurnID:     run.TurnID,
		ResponseID: run.ResponseID,
		Type:       eventType,
		Payload:    chatrun.EncodePayload(payload),
	}); err != nil {
		h.logger.Error("event sink append failed", "session_id", sessionID, "type", eventType, "error", err)
	}
}

// appendTransient is identical to append; the distinction exists to make
// call sites self-documenting about which obligations are persistence-free
// (the Sink itself decides not to write transient types to the log).
func (h *StreamHandler) appendTransient(ctx context.Context, sessionID string, run *chatrun.ActiveRun, eventType chatrun.EventType, payload interface{}) {
	h.append(ctx, sessionID, run, eventType, payload)
}
