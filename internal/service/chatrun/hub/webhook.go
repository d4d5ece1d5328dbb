package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"chatrun/internal/domain/models/chatrun"
)

// dispatchExternal delivers one user turn to a type=external agent's
// webhook endpoint and returns immediately after delivery settles — the
// endpoint owns the conversation from here. Delivery makes up to MaxAttempts attempts in total, with no retry on a
// 4xx response.
func (h *Hub) dispatchExternal(session *chatrun.Session, def *chatrun.AgentDefinition, text string) {
	body, err := json.Marshal(map[string]string{
		"session_id": session.ID,
		"text":       text,
	})
	if err != nil {
		h.logger.Error("encode webhook body failed", "session_id", session.ID, "error", err)
		return
	}

	maxAttempts := h.webhook.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if h.deliverWebhook(def, body) {
			return
		}
	}
	h.logger.Error("webhook delivery exhausted retries", "session_id", session.ID, "url", def.External.URL, "attempts", maxAttempts)
}

// deliverWebhook makes one attempt and reports whether delivery is
// considered settled (2xx success, or a 4xx the caller should not retry).
func (h *Hub) deliverWebhook(def *chatrun.AgentDefinition, body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.webhook.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.External.URL, bytes.NewReader(body))
	if err != nil {
		h.logger.Warn("build webhook request failed", "url", def.External.URL, "error", err)
		return true
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range def.External.Headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.logger.Warn("webhook attempt failed", "url", def.External.URL, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		h.logger.Warn("webhook rejected, not retrying", "url", def.External.URL, "status", resp.StatusCode)
		return true
	default:
		h.logger.Warn("webhook attempt returned server error", "url", def.External.URL, "status", resp.StatusCode)
		return false
	}
}
