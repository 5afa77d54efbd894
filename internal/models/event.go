package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Event types pushed to realtime subscribers.
const (
	EventMessageCreated      = "message.created"
	EventMessageDeleted      = "message.deleted"
	EventReactionToggled     = "reaction.toggled"
	EventConversationCreated = "conversation.created"
	EventConversationUpdated = "conversation.updated"
	EventTypingChanged       = "typing.changed"
	EventReadUpdated         = "read.updated"
	EventPresenceChanged     = "presence.changed"
)

// PresenceTopic receives every presence change.
const PresenceTopic = "presence"

// Event tells subscribers that state behind one of their reads changed.
// It carries ids only; subscribers re-read the snapshot they care about.
type Event struct {
	Type           string     `json:"type"`
	Topics         []string   `json:"topics"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	Timestamp      int64      `json:"ts"`
}

// ConversationTopic is the topic for events scoped to one conversation.
func ConversationTopic(id uuid.UUID) string {
	return fmt.Sprintf("conversation:%s", id)
}

// UserTopic is the topic for events addressed to one user.
func UserTopic(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}
