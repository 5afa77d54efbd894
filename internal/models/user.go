package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the internal identity record for an externally authenticated person.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	IsOnline   bool      `json:"is_online"`
	LastSeen   int64     `json:"last_seen"` // Unix ms
	IsDeleted  bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Identity is a caller identity verified by the external auth provider.
type Identity struct {
	Subject  string
	Name     string
	Email    string
	ImageURL string
}

// Profile carries the user fields the identity provider is authoritative for.
type Profile struct {
	Name     string
	Email    string
	ImageURL *string
}

// UserUpsert is the input of a create-or-update keyed by external id.
type UserUpsert struct {
	ExternalID string
	Profile
}

// IdentityEvent is a change pushed by the identity provider's webhook.
type IdentityEvent struct {
	Type       string // user.created, user.updated, user.deleted
	ExternalID string
	Profile    Profile
}

// Identity event types.
const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
	IdentityUserDeleted = "user.deleted"
)

// Stats is a point-in-time summary of the deployment.
type Stats struct {
	Users         int64
	OnlineUsers   int64
	Conversations int64
	Messages      int64
	LastActivity  *int64 // Unix ms of the newest message
}
