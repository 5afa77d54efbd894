package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ReactionRequest is the body of POST /messages/{id}/reactions.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ReactionResponse reports the reaction state after a toggle.
type ReactionResponse struct {
	MessageID string            `json:"message_id"`
	Emoji     string            `json:"emoji"`
	Active    bool              `json:"active"`
	Reactions []models.Reaction `json:"reactions"`
}

// MessageListResponse wraps a conversation's history.
type MessageListResponse struct {
	Messages []models.EnrichedMessage `json:"messages"`
}

// ListMessages returns the conversation's history, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	msgs, err := h.svc.List(r.Context(), me, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.EnrichedMessage{}
	}
	for i := range msgs {
		redact(&msgs[i].Message)
	}
	h.JSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

// SendMessage appends a message to the conversation.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.svc.Send(r.Context(), me, id, req.Content)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// ToggleReaction adds or removes the caller's reaction on a message.
func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "id")

	var req ReactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	active, err := h.svc.ToggleReaction(r.Context(), me, messageID, req.Emoji)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	msg, err := h.svc.GetMessage(r.Context(), me, messageID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, ReactionResponse{
		MessageID: msg.ID,
		Emoji:     strings.TrimSpace(req.Emoji),
		Active:    active,
		Reactions: msg.Reactions,
	})
}

// DeleteMessage soft-deletes one of the caller's messages.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// redact blanks the content of deleted messages; the row is kept so the
// thread still shows a placeholder.
func redact(m *models.Message) {
	if m.IsDeleted {
		m.Content = ""
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
}
