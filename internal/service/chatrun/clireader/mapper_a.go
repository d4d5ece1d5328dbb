package clireader

import (
	"encoding/json"
	"sync"

	"chatrun/internal/domain/models/chatrun"
)

// MapperA decodes CLI A's event vocabulary: a nested stream_event.event.delta
// shape for text/thinking deltas, content_block_start/delta/stop for tool
// invocations with streaming argument JSON, and full assistant/user message
// snapshots carrying tool_use/tool_result blocks.
type MapperA struct {
	mu          sync.Mutex
	emittedCall map[string]bool // tool_use_id -> tool-call-start already emitted
	activeCalls map[string]bool
	indexToCall map[int]string    // content-block index -> tool_use_id, for routing input_json_delta
	argsSoFar   map[string]string // tool_use_id -> accumulated argument JSON
	seenText    string            // last cumulative "full text so far" snapshot, for non-prefix detection
}

func NewMapperA() *MapperA {
	return &MapperA{
		emittedCall: make(map[string]bool),
		activeCalls: make(map[string]bool),
		indexToCall: make(map[int]string),
		argsSoFar:   make(map[string]string),
	}
}

// ReconciledText implements finalTextReconciler: CLI A's assistant
// envelopes periodically resend the full text so far, which is the
// authoritative value when it isn't a strict prefix extension of the
// streamed deltas.
func (m *MapperA) ReconciledText() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seenText, m.seenText != ""
}

func (m *MapperA) ActiveToolCallIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeCalls))
	for id := range m.activeCalls {
		ids = append(ids, id)
	}
	return ids
}

type cliAEnvelope struct {
	Type  string `json:"type"`
	Event struct {
		Type         string `json:"type"`
		Index        int    `json:"index"`
		ContentBlock struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content_block"`
		Delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
			Thinking    string `json:"thinking"`
		} `json:"delta"`
	} `json:"event"`
	Message struct {
		Content []cliABlock `json:"content"`
	} `json:"message"`
}

type cliABlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   string          `json:"content"`
	Text      string          `json:"text"`
	IsError   bool            `json:"is_error"`
}

func (m *MapperA) HandleLine(line string, emit func(chatrun.StreamEvent)) error {
	var env cliAEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch env.Type {
	case "stream_event":
		switch env.Event.Type {
		case "content_block_start":
			if env.Event.ContentBlock.Type == "tool_use" {
				id := env.Event.ContentBlock.ID
				// input_json_delta events don't repeat the block's id, only
				// its index; record the correlation for the deltas below.
				m.indexToCall[env.Event.Index] = id
				if !m.emittedCall[id] {
					m.emittedCall[id] = true
					m.activeCalls[id] = true
					emit(chatrun.ToolCallStart{CallID: id, ToolName: env.Event.ContentBlock.Name})
				}
			}
		case "content_block_delta":
			switch env.Event.Delta.Type {
			case "text_delta":
				if env.Event.Delta.Text != "" {
					emit(chatrun.TextDelta{Delta: env.Event.Delta.Text})
				}
			case "thinking_delta":
				if env.Event.Delta.Thinking != "" {
					emit(chatrun.ThinkingDelta{Delta: env.Event.Delta.Thinking})
				}
			case "input_json_delta":
				if id, ok := m.indexToCall[env.Event.Index]; ok && env.Event.Delta.PartialJSON != "" {
					m.argsSoFar[id] += env.Event.Delta.PartialJSON
					emit(chatrun.ToolInputDelta{
						CallID:     id,
						ArgsDelta:  env.Event.Delta.PartialJSON,
						Cumulative: m.argsSoFar[id],
					})
				}
			}
		case "content_block_stop":
			delete(m.indexToCall, env.Event.Index)
		}

	case "assistant":
		for _, block := range env.Message.Content {
			switch block.Type {
			case "tool_use":
				if !m.emittedCall[block.ID] {
					m.emittedCall[block.ID] = true
					m.activeCalls[block.ID] = true
					emit(chatrun.ToolCallStart{CallID: block.ID, ToolName: block.Name, ArgsSoFar: string(block.Input)})
				}
			case "text":
				// CLI A sometimes resends a "full text so far" snapshot
				// that isn't a strict prefix extension of what streaming
				// deltas already produced (whitespace rewrites). Never
				// emit a delta for it here — the content_block_delta
				// text_delta events above are the only source of
				// incremental text; this just records the latest
				// snapshot for the terminal reconciliation point.
				m.seenText = block.Text
			}
		}

	case "user":
		for _, block := range env.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			delete(m.activeCalls, block.ToolUseID)
			delete(m.argsSoFar, block.ToolUseID)
			emit(chatrun.ToolResult{
				CallID: block.ToolUseID,
				OK:     !block.IsError,
				Result: block.Content,
			})
		}
	}

	return nil
}
