package httpreader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// Run drives one Anthropic Messages streaming call and normalizes every
// server-sent event into a chatrun.StreamEvent delivered to onEvent, in
// order, before returning.
func (r *Reader) Run(ctx context.Context, req domainchatrun.ReadRequest, onEvent func(chatrun.StreamEvent)) (domainchatrun.ReadResult, error) {
	if !SupportsModel(req.Model) {
		return domainchatrun.ReadResult{}, fmt.Errorf("model %q is not an Anthropic model", req.Model)
	}

	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return domainchatrun.ReadResult{}, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		apiParams.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		apiParams.Tools = toAnthropicTools(req.Tools)
	}

	stream := r.client.Messages.NewStreaming(ctx, apiParams)

	var (
		message   anthropic.Message
		textSoFar string
		thinking  string
		calls     = map[int64]*chatrun.ToolCallState{}
		order     []int64
	)

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return domainchatrun.ReadResult{Aborted: true}, fmt.Errorf("accumulate message: %w", err)
		}

		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			switch e.ContentBlock.Type {
			case "thinking":
				onEvent(chatrun.ThinkingStart{})
			case "tool_use":
				st := &chatrun.ToolCallState{ID: e.ContentBlock.ID, Name: e.ContentBlock.Name}
				calls[e.Index] = st
				order = append(order, e.Index)
				onEvent(chatrun.ToolCallStart{CallID: st.ID, ToolName: st.Name})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch e.Delta.Type {
			case "text_delta":
				textSoFar += e.Delta.Text
				onEvent(chatrun.TextDelta{Delta: e.Delta.Text, Cumulative: textSoFar})
			case "thinking_delta":
				thinking += e.Delta.Thinking
				onEvent(chatrun.ThinkingDelta{Delta: e.Delta.Thinking})
			case "input_json_delta":
				if st, ok := calls[e.Index]; ok {
					st.ArgumentsRaw.WriteString(e.Delta.PartialJSON)
					onEvent(chatrun.ToolInputDelta{
						CallID:     st.ID,
						ArgsDelta:  e.Delta.PartialJSON,
						Cumulative: st.ArgumentsRaw.String(),
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			if st, ok := calls[e.Index]; ok && !st.Acquired() {
				delete(calls, e.Index)
			}

		case anthropic.MessageStopEvent:
			if thinking != "" {
				onEvent(chatrun.ThinkingDone{Text: thinking})
			}
		}

		select {
		case <-ctx.Done():
			return domainchatrun.ReadResult{Aborted: true, AccumulatedText: textSoFar}, nil
		default:
		}
	}

	if err := stream.Err(); err != nil {
		return domainchatrun.ReadResult{Aborted: true, AccumulatedText: textSoFar}, fmt.Errorf("anthropic streaming: %w", err)
	}

	toolCalls := make([]chatrun.ToolCallState, 0, len(order))
	for _, idx := range order {
		st, ok := calls[idx]
		if !ok || !st.Acquired() {
			continue
		}
		fresh := chatrun.ToolCallState{ID: st.ID, Name: st.Name}
		fresh.ArgumentsRaw.WriteString(st.ArgumentsRaw.String())
		toolCalls = append(toolCalls, fresh)
	}

	return domainchatrun.ReadResult{
		AccumulatedText: textSoFar,
		ToolCalls:       toolCalls,
		ProviderBlob:    providerBlob(message),
	}, nil
}

// providerBlob captures the assistant message's raw content blocks via the
// SDK's accumulate-then-ToParam idiom, so thinking-signature and tool_use
// block continuity survives round-tripping through session history
//. Marshal failure just drops continuity
// for this turn rather than failing it.
func providerBlob(message anthropic.Message) []byte {
	if len(message.Content) == 0 {
		return nil
	}
	raw, err := json.Marshal(message.ToParam().Content)
	if err != nil {
		return nil
	}
	return raw
}
