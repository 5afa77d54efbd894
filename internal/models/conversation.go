package models

import "github.com/google/uuid"

// PreviewLength is the maximum number of characters kept in a conversation's
// last message preview.
const PreviewLength = 100

// Conversation is a DM or group chat thread.
type Conversation struct {
	ID                 uuid.UUID   `json:"id"`
	Participants       []uuid.UUID `json:"participants"`
	IsGroup            bool        `json:"is_group"`
	GroupName          *string     `json:"group_name,omitempty"`
	LastMessageTime    *int64      `json:"last_message_time,omitempty"`
	LastMessagePreview *string     `json:"last_message_preview,omitempty"`
	CreatedAt          int64       `json:"created_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ConversationView is a conversation with its participants resolved.
type ConversationView struct {
	Conversation
	Members []User `json:"members"`
	Me      *User  `json:"me"`
}
