package hub

import (
	"fmt"

	"chatrun/internal/domain/models/chatrun"
)

// Catchup returns every persisted event after afterEventID for a session,
// used to replay missed events during reconnection.
// An empty afterEventID or an id the log no longer has returns the full
// log — the safe default for a client with no local state to reconcile.
func (h *Hub) Catchup(sessionID, afterEventID string) ([]chatrun.ChatEvent, error) {
	if h.sink == nil {
		return nil, fmt.Errorf("hub has no event sink attached")
	}
	return h.sink.GetEventsSince(sessionID, afterEventID)
}

// ReplayTo pushes every event since afterEventID directly to one
// connection, before it joins the session's live broadcast fan-out.
func (h *Hub) ReplayTo(conn chatrun.Connection, sessionID, afterEventID string) error {
	events, err := h.Catchup(sessionID, afterEventID)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := conn.Send(chatrun.ServerChatEventMessage{SessionID: sessionID, Event: event}); err != nil {
			return fmt.Errorf("replay to connection %s: %w", conn.ID(), err)
		}
	}
	return nil
}
