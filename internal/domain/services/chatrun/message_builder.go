package chatrun

import (
	"chatrun/internal/domain/models/chatrun"
)

// MessageBuilder builds the in-process provider's message history from a
// session's ChatMessage log, including reconstructing any opaque
// provider-native blobs preserved on prior assistant messages.
type MessageBuilder interface {
	BuildMessages(history []chatrun.ChatMessage) ([]chatrun.ChatMessage, error)
}
