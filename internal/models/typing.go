package models

import (
	"time"

	"github.com/google/uuid"
)

// TypingWindow is how long a typing signal stays live.
const TypingWindow = 2 * time.Second

// TypingIndicator is the last typing signal of a user in a conversation.
type TypingIndicator struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	LastTyped      int64     `json:"last_typed"` // Unix ms
}

// ReadReceipt is a user's read watermark in a conversation.
type ReadReceipt struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	LastReadTime   int64     `json:"last_read_time"` // Unix ms
}
