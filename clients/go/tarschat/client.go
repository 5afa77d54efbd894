// Package tarschat provides a client for the tarschat HTTP API.
package tarschat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a tarschat API client authenticated with a bearer token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tarschat error %d (%s): %s", e.Status, e.Code, e.Message)
}

// do performs a request and decodes the JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(respBody, apiErr)
		return apiErr
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// User is a chat user.
type User struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
	IsOnline   bool    `json:"is_online"`
	LastSeen   int64   `json:"last_seen"`
}

// Profile overrides the profile carried by the token.
type Profile struct {
	Name     string  `json:"name,omitempty"`
	Email    string  `json:"email,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Conversation is a DM or group with its members resolved.
type Conversation struct {
	ID                 string   `json:"id"`
	Participants       []string `json:"participants"`
	IsGroup            bool     `json:"is_group"`
	GroupName          *string  `json:"group_name,omitempty"`
	LastMessageTime    *int64   `json:"last_message_time,omitempty"`
	LastMessagePreview *string  `json:"last_message_preview,omitempty"`
	CreatedAt          int64    `json:"created_at"`
	Members            []User   `json:"members"`
	Me                 *User    `json:"me"`
}

// Reaction is the set of users who reacted with one emoji.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

// Message is a chat message.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	Timestamp      int64      `json:"ts"`
	IsDeleted      bool       `json:"is_deleted"`
	Reactions      []Reaction `json:"reactions"`
	Sender         *User      `json:"sender,omitempty"`
}

// ReadReceipt is a participant's read watermark.
type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	LastReadTime   int64  `json:"last_read_time"`
}

// ReactionResult reports the reaction state after a toggle.
type ReactionResult struct {
	MessageID string     `json:"message_id"`
	Emoji     string     `json:"emoji"`
	Active    bool       `json:"active"`
	Reactions []Reaction `json:"reactions"`
}

// UpsertMe registers or refreshes the caller.
func (c *Client) UpsertMe(ctx context.Context, p Profile) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/users/me", p, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Me returns the caller.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers lists other users, filtered by search when non-empty.
func (c *Client) ListUsers(ctx context.Context, search string) ([]User, error) {
	path := "/users"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// SetPresence marks the caller online or offline.
func (c *Client) SetPresence(ctx context.Context, online bool) error {
	return c.do(ctx, http.MethodPut, "/presence", map[string]bool{"is_online": online}, nil)
}

// ListConversations lists the caller's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// OpenDirect returns the id of the DM with userID, creating it if needed.
func (c *Client) OpenDirect(ctx context.Context, userID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/direct", map[string]string{"user_id": userID}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (string, error) {
	req := struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}{name, memberIDs}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/group", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetConversation returns one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages returns a conversation's history, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send posts a message.
func (c *Client) Send(ctx context.Context, conversationID, content string) (*Message, error) {
	var msg Message
	err := c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/messages",
		map[string]string{"content": content}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetTyping signals that the caller is typing.
func (c *Client) SetTyping(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPut, "/conversations/"+conversationID+"/typing", nil, nil)
}

// ClearTyping withdraws the caller's typing signal.
func (c *Client) ClearTyping(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+conversationID+"/typing", nil, nil)
}

// Typers lists the other users currently typing.
func (c *Client) Typers(ctx context.Context, conversationID string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/typing", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// MarkRead advances the caller's read watermark.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (*ReadReceipt, error) {
	var rr ReadReceipt
	if err := c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/read", nil, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// React toggles the caller's reaction on a message.
func (c *Client) React(ctx context.Context, messageID, emoji string) (*ReactionResult, error) {
	var res ReactionResult
	err := c.do(ctx, http.MethodPost, "/messages/"+messageID+"/reactions",
		map[string]string{"emoji": emoji}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteMessage soft-deletes one of the caller's messages.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+messageID, nil, nil)
}
