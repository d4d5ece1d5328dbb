// Package hub implements the Session Hub: the owner of process-wide
// session state, the single-active-turn rule, message queueing, broadcast
// fan-out, and the cancel handler.
package hub

import (
	"sync"

	"chatrun/internal/domain/models/chatrun"
)

// sessionRegistry holds every live Session, keyed by id. Session state is
// owned by the Hub; reads/writes during a turn occur only from the Turn
// Runner currently holding that session, so the registry
// itself only guards the map of pointers, never session contents.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*chatrun.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*chatrun.Session)}
}

// register adds a new session, rejecting a duplicate id.
func (r *sessionRegistry) register(s *chatrun.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

// get retrieves a session by id, or nil if none is registered.
func (r *sessionRegistry) get(id string) *chatrun.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// remove drops a session from the registry. Safe to call even if the
// session was never registered.
func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// count returns the number of registered sessions. Useful for monitoring
// and tests.
func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ids returns every registered session id.
func (r *sessionRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
