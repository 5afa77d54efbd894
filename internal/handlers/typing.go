package handlers

import (
	"net/http"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// TypingResponse lists the users currently typing.
type TypingResponse struct {
	Users []models.User `json:"users"`
}

// ActiveTypers returns the other participants currently typing.
func (h *Handler) ActiveTypers(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	users, err := h.svc.ActiveTypers(r.Context(), me, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, TypingResponse{Users: users})
}

// SetTyping refreshes the caller's typing signal.
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.SetTyping(r.Context(), me, id); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearTyping removes the caller's typing signal.
func (h *Handler) ClearTyping(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.ClearTyping(r.Context(), me, id); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
