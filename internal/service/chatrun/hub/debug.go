// debug.go exposes a minimal read-only HTTP surface for event-log
// inspection and redacted provider-request introspection, gated by
// Config.Debug.
package hub

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"

	"chatrun/internal/service/chatrun/redact"
)

// DebugHandler builds the debug HTTP surface: GET /sessions/{id}/events
// replays a session's persisted log; GET /debug/provider-request?session_id=
// returns a redacted snapshot of what would be sent to the provider next.
func (h *Hub) DebugHandler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}/events", h.handleGetEvents)
	mux.HandleFunc("GET /debug/provider-request", h.handleDebugProviderRequest)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(mux)
}

func (h *Hub) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		http.Error(w, "event sink not attached", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	events, err := h.sink.GetEvents(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		h.logger.Warn("encode events response failed", "session_id", id, "error", err)
	}
}

func (h *Hub) handleDebugProviderRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	session, err := h.GetSession(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	session.Lock()
	payload, err := json.Marshal(map[string]interface{}{
		"session_id": session.ID,
		"model":      session.Model,
		"messages":   session.Messages,
	})
	session.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	redacted, err := redact.Redact(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(redacted); err != nil {
		h.logger.Warn("write debug response failed", "session_id", sessionID, "error", err)
	}
}
