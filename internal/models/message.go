package models

import "github.com/google/uuid"

// Message is one chat entry.
type Message struct {
	ID             string     `json:"id"` // ULID
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      int64      `json:"ts"` // Unix ms, ordering key
	IsDeleted      bool       `json:"is_deleted"`
	Reactions      []Reaction `json:"reactions"`
}

// Reaction is the set of users who reacted to a message with one emoji.
// UserIDs is never empty.
type Reaction struct {
	Emoji   string      `json:"emoji"`
	UserIDs []uuid.UUID `json:"user_ids"`
}

// EnrichedMessage is a message with its sender resolved. Sender is nil when
// the sender record cannot be found.
type EnrichedMessage struct {
	Message
	Sender *User `json:"sender,omitempty"`
}
