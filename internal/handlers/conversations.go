package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// DirectRequest is the body of POST /conversations/direct.
type DirectRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// GroupRequest is the body of POST /conversations/group.
type GroupRequest struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// ConversationResponse is a created or reused conversation.
type ConversationResponse struct {
	ID uuid.UUID `json:"id"`
}

// ConversationListResponse wraps the caller's conversations.
type ConversationListResponse struct {
	Conversations []models.ConversationView `json:"conversations"`
}

const maxGroupMembers = 100

// ListConversations lists the caller's conversations, most recent first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	views, err := h.svc.ListConversations(r.Context(), me)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if views == nil {
		views = []models.ConversationView{}
	}
	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: views})
}

// CreateDirect opens (or reuses) the DM between the caller and another user.
func (h *Handler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req DirectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "user_id is required")
		return
	}

	conv, err := h.svc.GetOrCreateDirectConversation(r.Context(), me, req.UserID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, ConversationResponse{ID: conv.ID})
}

// CreateGroup creates a group conversation led by the caller.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req GroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.MemberIDs) > maxGroupMembers {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "too many members (max 100)")
		return
	}

	conv, err := h.svc.CreateGroup(r.Context(), me, req.Name, req.MemberIDs)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, ConversationResponse{ID: conv.ID})
}

// GetConversation returns one conversation with its members resolved.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.svc.GetConversation(r.Context(), me, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if view == nil {
		h.Error(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	h.JSON(w, http.StatusOK, view)
}
