package chatrun

import (
	"encoding/json"
	"fmt"
)

// EncodeSSE formats a ServerMessage as a single server-sent-event frame:
//
//	event: <msg.Type()>
//	data: <json>
//	\n
//
// The websocket/SSE transport itself is an out-of-scope external
// collaborator; this helper exists for the debug read-only HTTP surface
// that replays a session's persisted events.
func EncodeSSE(msg ServerMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode sse frame: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Type(), string(data)), nil
}
