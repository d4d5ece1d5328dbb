package httpreader

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"chatrun/internal/domain/models/chatrun"
)

// toAnthropicMessages renders session history into the Anthropic wire
// format. ProviderBlob, when present on an assistant message, is decoded in
// place of reconstructing the message from Content/ToolCalls — this is how
// the in-process provider recovers thinking-signature and tool_use block
// continuity across turns.
func toAnthropicMessages(history []chatrun.ChatMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case chatrun.RoleUser, chatrun.RoleSystem:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case chatrun.RoleAssistant:
			if len(m.ProviderBlob) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if err := json.Unmarshal(m.ProviderBlob, &blocks); err != nil {
					return nil, fmt.Errorf("decode provider blob: %w", err)
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
				continue
			}
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
			for _, tc := range m.ToolCalls {
				var input interface{}
				_ = json.Unmarshal([]byte(tc.ArgumentsRaw), &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.ToolName))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case chatrun.RoleTool:
			payload, err := chatrun.DecodeToolResultPayload(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decode tool result payload: %w", err)
			}
			text := payload.Result
			if !payload.OK && payload.Error != nil {
				text = payload.Error.Message
			}
			b, _ := json.Marshal(text)
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, string(b), !payload.OK),
			))
		}
	}
	return out, nil
}

func toAnthropicTools(tools []chatrun.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		param := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
				Required:   stringSliceFrom(t.Parameters["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func stringSliceFrom(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
