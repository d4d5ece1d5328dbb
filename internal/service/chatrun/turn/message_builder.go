package turn

import (
	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// DefaultMessageBuilder hands the session's history straight to the
// in-process provider. Assistant messages that preserved a ProviderBlob are
// left alone — the HTTP Stream Reader's own converter reconstructs the
// provider-native block list from it; there is nothing
// further for the builder to do, unlike a provider whose wire format cannot
// round-trip through the plain Content/ToolCalls fields.
type DefaultMessageBuilder struct{}

var _ domainchatrun.MessageBuilder = DefaultMessageBuilder{}

func (DefaultMessageBuilder) BuildMessages(history []chatrun.ChatMessage) ([]chatrun.ChatMessage, error) {
	return history, nil
}
