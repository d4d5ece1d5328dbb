package clireader

import (
	"encoding/json"
	"strings"
	"sync"

	"chatrun/internal/domain/models/chatrun"
)

// MapperC decodes CLI C's event vocabulary: message_update.assistantMessageEvent
// records for text/thinking/tool lifecycle, plus a session/session_header
// event reporting the CLI's own session id and working directory.
type MapperC struct {
	mu            sync.Mutex
	activeCalls   map[string]bool
	toolOutputSoFar map[string]string
}

func NewMapperC() *MapperC {
	return &MapperC{
		activeCalls:     make(map[string]bool),
		toolOutputSoFar: make(map[string]string),
	}
}

func (m *MapperC) ActiveToolCallIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeCalls))
	for id := range m.activeCalls {
		ids = append(ids, id)
	}
	return ids
}

type cliCEnvelope struct {
	Type    string `json:"type"`
	Session struct {
		ID  string `json:"id"`
		Cwd string `json:"cwd"`
	} `json:"session"`
	MessageUpdate struct {
		AssistantMessageEvent struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			CallID   string `json:"call_id"`
			ToolName string `json:"tool_name"`
			Result   struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
				IsError bool `json:"is_error"`
			} `json:"result"`
		} `json:"assistantMessageEvent"`
	} `json:"message_update"`
}

const maxOverlapSearch = 8 * 1024

func (m *MapperC) HandleLine(line string, emit func(chatrun.StreamEvent)) error {
	var e cliCEnvelope
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Type == "session" || e.Type == "session_header" {
		emit(chatrun.SessionInfo{SessionID: e.Session.ID, Cwd: e.Session.Cwd})
		return nil
	}

	ev := e.MessageUpdate.AssistantMessageEvent
	switch ev.Type {
	case "text_delta":
		emit(chatrun.TextDelta{Delta: ev.Text})

	case "thinking_start":
		emit(chatrun.ThinkingStart{})
	case "thinking_delta":
		emit(chatrun.ThinkingDelta{Delta: ev.Text})
	case "thinking_end":
		emit(chatrun.ThinkingDone{Text: ev.Text})

	case "tool_execution_start":
		m.activeCalls[ev.CallID] = true
		m.toolOutputSoFar[ev.CallID] = ""
		emit(chatrun.ToolCallStart{CallID: ev.CallID, ToolName: ev.ToolName})

	case "tool_execution_update":
		prev := m.toolOutputSoFar[ev.CallID]
		delta := outputDelta(prev, ev.Text)
		m.toolOutputSoFar[ev.CallID] = ev.Text
		if delta != "" {
			emit(chatrun.ToolOutputDelta{CallID: ev.CallID, ToolName: ev.ToolName, Chunk: delta, Stream: chatrun.ToolOutputStdout})
		}

	case "tool_execution_end":
		delete(m.activeCalls, ev.CallID)
		delete(m.toolOutputSoFar, ev.CallID)
		var sb strings.Builder
		for _, c := range ev.Result.Content {
			if c.Type == "text" {
				sb.WriteString(c.Text)
			}
		}
		emit(chatrun.ToolResult{
			CallID:   ev.CallID,
			ToolName: ev.ToolName,
			OK:       !ev.Result.IsError,
			Result:   sb.String(),
		})
	}

	return nil
}

// outputDelta computes the incremental chunk between a previous cumulative
// output string and its successor: a strict-prefix extension returns the
// suffix; otherwise a trailing-overlap search over the last 8KB of prev
// finds the longest overlap and returns the remainder.
func outputDelta(prev, next string) string {
	if strings.HasPrefix(next, prev) {
		return next[len(prev):]
	}

	window := prev
	if len(window) > maxOverlapSearch {
		window = window[len(window)-maxOverlapSearch:]
	}
	maxOverlap := len(window)
	if len(next) < maxOverlap {
		maxOverlap = len(next)
	}
	for overlap := maxOverlap; overlap > 0; overlap-- {
		if strings.HasSuffix(window, next[:overlap]) {
			return next[overlap:]
		}
	}
	// No reliable overlap found; treat the whole next value as new content.
	return next
}
