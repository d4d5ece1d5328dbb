package clireader

import (
	"encoding/json"
	"sync"

	"chatrun/internal/domain/models/chatrun"
)

// MapperB decodes CLI B's event vocabulary: thread/session lifecycle events
// carrying the CLI's own session id, item.started/item.completed for shell
// commands (mapped to a "shell" tool call), reasoning (mapped to a single
// thinking chunk), and agent messages (mapped to a text delta).
type MapperB struct {
	mu          sync.Mutex
	activeCalls map[string]bool
}

func NewMapperB() *MapperB {
	return &MapperB{activeCalls: make(map[string]bool)}
}

func (m *MapperB) ActiveToolCallIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeCalls))
	for id := range m.activeCalls {
		ids = append(ids, id)
	}
	return ids
}

type cliBEvent struct {
	Type string `json:"type"`

	// The CLI's own session identifier arrives under a different key per
	// lifecycle event: thread.started carries a top-level thread_id,
	// session_configured a top-level session_id, session_meta a nested
	// session object.
	ThreadID  string `json:"thread_id"`
	SessionID string `json:"session_id"`
	Session   struct {
		ID  string `json:"id"`
		Cwd string `json:"cwd"`
	} `json:"session"`
	Item struct {
		ID      string `json:"id"`
		Type    string `json:"type"` // command_execution | reasoning | agent_message
		Command string `json:"command"`
		Output  string `json:"output"`
		ExitCode int   `json:"exit_code"`
		Text    string `json:"text"`
	} `json:"item"`
}

func (m *MapperB) HandleLine(line string, emit func(chatrun.StreamEvent)) error {
	var e cliBEvent
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.Type {
	case "thread.started", "session_configured", "session_meta":
		id := e.ThreadID
		if id == "" {
			id = e.SessionID
		}
		if id == "" {
			id = e.Session.ID
		}
		emit(chatrun.SessionInfo{SessionID: id, Cwd: e.Session.Cwd})

	case "item.started":
		if e.Item.Type == "command_execution" {
			m.activeCalls[e.Item.ID] = true
			emit(chatrun.ToolCallStart{
				CallID:    e.Item.ID,
				ToolName:  "shell",
				ArgsSoFar: mustJSON(map[string]string{"command": e.Item.Command}),
			})
		}

	case "item.completed":
		switch e.Item.Type {
		case "command_execution":
			delete(m.activeCalls, e.Item.ID)
			emit(chatrun.ToolResult{
				CallID:   e.Item.ID,
				ToolName: "shell",
				OK:       e.Item.ExitCode == 0,
				Result:   map[string]interface{}{"output": e.Item.Output, "exitCode": e.Item.ExitCode},
			})
		case "reasoning":
			if e.Item.Text != "" {
				emit(chatrun.ThinkingStart{})
				emit(chatrun.ThinkingDelta{Delta: e.Item.Text})
				emit(chatrun.ThinkingDone{Text: e.Item.Text})
			}
		case "agent_message":
			emit(chatrun.TextDelta{Delta: e.Item.Text + "\n"})
		}
	}

	return nil
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
