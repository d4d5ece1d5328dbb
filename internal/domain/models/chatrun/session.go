package chatrun

import "sync"

// Role identifies who authored a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCallRequest is the assistant-issued invocation that a subsequent
// ChatMessage with Role==RoleTool and matching ToolCallID must answer.
type ToolCallRequest struct {
	ID           string `json:"id"`
	ToolName     string `json:"name"`
	ArgumentsRaw string `json:"arguments"`
}

// ChatMessage is one entry in a session's conversation history.
//
// Invariant: every ToolCalls[i] on an assistant message must be answered by
// exactly one subsequent tool message with a matching ToolCallID before the
// next user message is accepted into the model.
type ChatMessage struct {
	Role Role `json:"role"`

	// Content is the textual body. For tool messages this is the
	// JSON-serialized {ok, result, error} payload (see ToolResultPayload).
	Content string `json:"content"`

	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message back to the assistant ToolCallRequest it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ProviderBlob preserves an opaque provider-native continuity token
	// (e.g. the raw assistant message block list) so the in-process
	// provider can reconstruct its own wire format on the next turn.
	ProviderBlob []byte `json:"provider_blob,omitempty"`
}

// SessionAttributes carries provider-specific continuity state that must
// survive across turns: a CLI-issued session identifier and the working
// directory the CLI provider was last invoked in.
type SessionAttributes struct {
	CLISessionID string
	WorkingDir   string
}

// QueuedMessage is a follow-up user message waiting for the active run to finish.
type QueuedMessage struct {
	Text       string
	ResponseID string
}

// Connection is a live subscriber attached to a session's broadcast fan-out.
// Concrete transports (websocket, SSE) implement this; the orchestrator core
// only needs to push frames and learn when a connection has gone away.
type Connection interface {
	ID() string
	Send(msg ServerMessage) error
}

// Session is the process-wide unit of conversational state. At most one
// ActiveRun may be set at a time; once Deleted is true no new turns are
// accepted.
type Session struct {
	mu sync.Mutex

	ID         string
	AgentID    string
	Model      string
	Attributes SessionAttributes

	Messages []ChatMessage

	ActiveRun *ActiveRun

	MessageQueue []QueuedMessage

	Deleted bool

	// LastActivityPreview is a short excerpt of the latest assistant
	// output, recorded at terminal emission and on cancel for listings and
	// resume UIs.
	LastActivityPreview string

	connections map[string]Connection
}

// NewSession constructs an empty session ready to accept its first turn.
func NewSession(id, agentID, model string) *Session {
	return &Session{
		ID:          id,
		AgentID:     agentID,
		Model:       model,
		connections: make(map[string]Connection),
	}
}

// Lock/Unlock expose the session's mutex to the Session Hub, which is the
// sole owner of cross-goroutine access to session state: during a turn,
// reads and writes happen only from the Turn Runner currently holding the
// session.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// RecordActivity stores a short preview of the session's latest assistant
// output. Callers must not hold the session lock.
func (s *Session) RecordActivity(text string) {
	const previewLen = 120
	if len(text) > previewLen {
		text = text[:previewLen]
	}
	s.mu.Lock()
	s.LastActivityPreview = text
	s.mu.Unlock()
}

func (s *Session) AddConnection(c Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID()] = c
}

func (s *Session) RemoveConnection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
}

// Connections returns a snapshot slice safe to range over without holding
// the session lock during delivery (delivery may block on a slow client).
func (s *Session) Connections() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

func (s *Session) ConnectionExcluding(excludeID string) []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Connection, 0, len(s.connections))
	for id, c := range s.connections {
		if id == excludeID {
			continue
		}
		out = append(out, c)
	}
	return out
}
