package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chatrun/internal/domain"
	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
	"chatrun/internal/service/chatrun/agent"
	"chatrun/internal/service/chatrun/events"
)

// SubmitStatus reports whether submitMessage started a turn immediately or
// queued it behind an active one.
type SubmitStatus string

const (
	StatusStarted SubmitStatus = "started"
	StatusQueued  SubmitStatus = "queued"
)

// Hub is the concrete Session Hub: it owns every Session,
// enforces the single-active-turn rule, fans broadcasts out to connections,
// and runs the cancel handler.
//
// Construction is two-phase because the Turn Runner's Stream Handler needs
// a Broadcaster (the Hub) before the Hub can hold a TurnRunner, and the
// Event Sink needs the same Broadcaster before the Hub can hold a Sink:
// call New, wire the Sink/StreamHandler/TurnRunner against the resulting
// Hub, then call Attach.
type Hub struct {
	sessions *sessionRegistry
	agents   *agent.Registry
	logger   *slog.Logger
	webhook  WebhookConfig

	sink   *events.Sink
	runner domainchatrun.TurnRunner
}

// WebhookConfig configures delivery to type=external agents.
type WebhookConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

func New(agents *agent.Registry, webhook WebhookConfig, logger *slog.Logger) *Hub {
	return &Hub{
		sessions: newSessionRegistry(),
		agents:   agents,
		logger:   logger,
		webhook:  webhook,
	}
}

// Attach completes construction once the Sink and Turn Runner exist.
func (h *Hub) Attach(sink *events.Sink, runner domainchatrun.TurnRunner) {
	h.sink = sink
	h.runner = runner
}

// CreateSession registers a new session, rejecting a duplicate id.
func (h *Hub) CreateSession(id, agentID, model string) (*chatrun.Session, error) {
	session := chatrun.NewSession(id, agentID, model)
	if !h.sessions.register(session) {
		return nil, fmt.Errorf("%w: session %q already exists", domain.ErrConflict, id)
	}
	return session, nil
}

// GetSession returns the registered session for id.
func (h *Hub) GetSession(id string) (*chatrun.Session, error) {
	session := h.sessions.get(id)
	if session == nil {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	return session, nil
}

// DeleteSession marks a session deleted; no new turn is accepted afterward,
// but its event log and message history remain readable.
func (h *Hub) DeleteSession(id string) error {
	session, err := h.GetSession(id)
	if err != nil {
		return err
	}
	session.Lock()
	session.Deleted = true
	session.Unlock()
	return nil
}

// Connect attaches a live connection to a session's broadcast fan-out.
func (h *Hub) Connect(sessionID string, conn chatrun.Connection) error {
	session, err := h.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.AddConnection(conn)
	return nil
}

// Disconnect removes a connection from a session's fan-out.
func (h *Hub) Disconnect(sessionID, connID string) error {
	session, err := h.GetSession(sessionID)
	if err != nil {
		return err
	}
	session.RemoveConnection(connID)
	return nil
}

// BroadcastToSession implements turn.Broadcaster and events.Broadcaster:
// it sends to every connection attached to the session, one after another
// on the caller's goroutine, so a Connection whose Send blocks delays the
// caller; send failures are logged and
// swallowed, matching the Event Sink's own broadcastSafely convention.
func (h *Hub) BroadcastToSession(sessionID string, msg chatrun.ServerMessage) {
	h.broadcast(sessionID, "", msg)
}

// BroadcastToSessionExcluding skips the connection that already has msg
// locally.
func (h *Hub) BroadcastToSessionExcluding(sessionID, excludeConnID string, msg chatrun.ServerMessage) {
	h.broadcast(sessionID, excludeConnID, msg)
}

func (h *Hub) broadcast(sessionID, excludeConnID string, msg chatrun.ServerMessage) {
	session := h.sessions.get(sessionID)
	if session == nil {
		return
	}
	var conns []chatrun.Connection
	if excludeConnID == "" {
		conns = session.Connections()
	} else {
		conns = session.ConnectionExcluding(excludeConnID)
	}
	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			h.logger.Warn("broadcast send failed, dropping", "session_id", sessionID, "connection_id", conn.ID(), "error", err)
		}
	}
}

// SubmitMessage is the Hub's public entry: validates the
// input, then either starts a turn immediately or queues it behind the
// session's active run.
func (h *Hub) SubmitMessage(ctx context.Context, sessionID, text, trigger string) (SubmitStatus, error) {
	if err := validateSubmit(sessionID, text); err != nil {
		return "", err
	}

	session, err := h.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	session.Lock()
	if session.Deleted {
		session.Unlock()
		return "", fmt.Errorf("%w: session has been deleted", domain.ErrValidation)
	}
	if session.ActiveRun != nil {
		session.MessageQueue = append(session.MessageQueue, chatrun.QueuedMessage{Text: text, ResponseID: uuid.NewString()})
		session.Unlock()
		return StatusQueued, nil
	}
	session.Unlock()

	h.startTurn(session, text, uuid.NewString(), trigger)
	return StatusStarted, nil
}

// startTurn resolves the session's agent and dispatches accordingly: a
// type=external agent is fire-and-forget; a type=chat agent runs on
// its own goroutine so SubmitMessage never blocks on a turn's duration.
func (h *Hub) startTurn(session *chatrun.Session, text, responseID, trigger string) {
	agentDef, err := h.agents.Get(session.AgentID)
	if err != nil {
		h.logger.Error("unknown agent for session", "session_id", session.ID, "agent_id", session.AgentID, "error", err)
		h.BroadcastToSession(session.ID, chatrun.ServerErrorMessage{Code: "agent_config_error", Message: err.Error(), Fatal: true})
		return
	}

	if agentDef.Type == chatrun.AgentTypeExternal {
		go h.dispatchExternal(session, agentDef, text)
		return
	}

	go func() {
		_, err := h.runner.RunTurn(context.Background(), session, domainchatrun.RunTurnRequest{
			Text:       text,
			ResponseID: responseID,
			Trigger:    trigger,
			Agent:      agentDef,
		})
		if err != nil {
			h.logger.Error("turn failed", "session_id", session.ID, "error", err)
		}
		h.drainNext(session)
	}()
}

// drainNext is scheduled by the Turn Runner's cleanup path (via the
// goroutine in startTurn): it pops the head of the queue, if any, and
// starts a new turn.
func (h *Hub) drainNext(session *chatrun.Session) {
	session.Lock()
	if len(session.MessageQueue) == 0 {
		session.Unlock()
		return
	}
	next := session.MessageQueue[0]
	session.MessageQueue = session.MessageQueue[1:]
	session.Unlock()

	h.startTurn(session, next.Text, next.ResponseID, chatrun.TriggerUser)
}

func (h *Hub) appendEvent(sessionID string, run *chatrun.ActiveRun, eventType chatrun.EventType, payload interface{}) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Append(context.Background(), sessionID, chatrun.ChatEvent{
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
