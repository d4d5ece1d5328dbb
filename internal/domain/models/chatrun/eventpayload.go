package chatrun

import "encoding/json"

// DecodeToolResultPayload parses a tool ChatMessage's Content back into its
// typed {ok, result, error} shape. Used by the Turn Runner's message builder
// when reconstructing provider-native tool results from history.
func DecodeToolResultPayload(content string) (ToolResultPayload, error) {
	var p ToolResultPayload
	if content == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(content), &p)
	return p, err
}

// EncodeToolResultPayload serializes a ToolResultPayload for storage as a
// tool ChatMessage's Content: a JSON-serialized {ok, result, error} body.
func EncodeToolResultPayload(p ToolResultPayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		return `{"ok":false,"error":{"code":"tool_error","message":"failed to encode result"}}`
	}
	return string(b)
}
