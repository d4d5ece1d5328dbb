package hub

import (
	"fmt"

	"chatrun/internal/domain"
	"chatrun/internal/domain/models/chatrun"
)

// CancelRequest carries a client's cancel control message.
type CancelRequest struct {
	SessionID  string
	AudioEndMs *int64
}

// HandleOutputCancel is the Hub's six-step cancel handler.
// It is the hardest procedure in the Hub: it must leave the chat history
// well-formed (every active tool call answered) no matter where in the
// stream the cancel landed.
func (h *Hub) HandleOutputCancel(req CancelRequest) error {
	session := h.sessions.get(req.SessionID)
	if session == nil {
		return fmt.Errorf("%w: unknown session %q", domain.ErrNotFound, req.SessionID)
	}

	session.Lock()
	run := session.ActiveRun
	if run == nil {
		session.Unlock()
		return nil
	}

	// Step 1: record the audio truncation point, if any.
	if req.AudioEndMs != nil && *req.AudioEndMs >= 0 {
		run.AudioEndMs = req.AudioEndMs
	}

	// Step 2: mark cancelled and grab what the cancel handle/TTS session
	// need, before releasing the lock to actually trigger them.
	run.OutputCancelled = true
	cancel := run.Cancel
	ttsSession := run.TTSSession
	accumulated := run.AccumulatedText
	hadActiveTools := len(run.ActiveToolCalls) > 0
	hadActivity := accumulated != "" || hadActiveTools || run.ThinkingStarted
	activeCalls := make([]string, 0, len(run.ActiveToolCalls))
	for id := range run.ActiveToolCalls {
		activeCalls = append(activeCalls, id)
	}
	sessionID := session.ID
	session.Unlock()

	cancel()
	if ttsSession != nil {
		ttsSession.Cancel()
	}

	// Step 3: persist the partial assistant text, but only push it into
	// chat history when no tool call was still in flight — otherwise the
	// synthesized tool messages below must immediately follow the
	// assistant tool-call message the Runner already pushed.
	if accumulated != "" {
		h.appendEvent(sessionID, run, chatrun.EventAssistantDone, chatrun.AssistantDonePayload{Text: accumulated})
		session.RecordActivity(accumulated)
		if !hadActiveTools {
			session.Lock()
			session.Messages = append(session.Messages, chatrun.ChatMessage{Role: chatrun.RoleAssistant, Content: accumulated})
			session.Unlock()
		}
	}

	// Step 4: synthesize an interrupted tool_result for every call still
	// in flight.
	for _, callID := range activeCalls {
		errInfo := &chatrun.ToolErrorInfo{Code: chatrun.ErrToolInterrupted, Message: "Tool call was interrupted by the user"}

		session.Lock()
		toolName := run.ActiveToolCalls[callID].ToolName
		delete(run.ActiveToolCalls, callID)
		session.Messages = append(session.Messages, chatrun.ChatMessage{
			Role:       chatrun.RoleTool,
			Content:    chatrun.EncodeToolResultPayload(chatrun.ToolResultPayload{OK: false, Error: errInfo}),
			ToolCallID: callID,
		})
		session.Unlock()

		h.BroadcastToSession(sessionID, chatrun.ServerToolResultMessage{CallID: callID, ToolName: toolName, OK: false, Error: errInfo})
		h.appendEvent(sessionID, run, chatrun.EventToolResult, chatrun.ToolResultEventPayload{CallID: callID, ToolName: toolName, OK: false, Error: errInfo})
	}

	// Step 5: the interrupt event itself, skipped when the cancel landed
	// before any stream activity at all.
	if hadActivity {
		h.appendEvent(sessionID, run, chatrun.EventInterrupt, chatrun.InterruptPayload{Reason: "user_cancel"})
	}

	// Step 6: let clients reconcile UI state.
	h.BroadcastToSession(sessionID, chatrun.ServerOutputCancelledMessage{ResponseID: run.ResponseID})

	return nil
}
