package handlers

import (
	"net/http"

	"github.com/eldtechnologies/tarschat/internal/api/middleware"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// UpsertMeRequest overrides the profile carried by the token. Empty fields
// fall back to the token's claims.
type UpsertMeRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	ImageURL *string `json:"image_url"`
}

// PresenceRequest is the body of PUT /presence.
type PresenceRequest struct {
	IsOnline *bool `json:"is_online"`
}

// UserListResponse wraps a list of users.
type UserListResponse struct {
	Users []models.User `json:"users"`
}

// UpsertMe creates or refreshes the caller's user record.
func (h *Handler) UpsertMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	var req UpsertMeRequest
	if !h.decode(w, r, &req) {
		return
	}

	profile := models.Profile{Name: req.Name, Email: req.Email, ImageURL: req.ImageURL}
	if identity != nil {
		if profile.Name == "" {
			profile.Name = identity.Name
		}
		if profile.Email == "" {
			profile.Email = identity.Email
		}
		if profile.ImageURL == nil && identity.ImageURL != "" {
			image := identity.ImageURL
			profile.ImageURL = &image
		}
	}

	u, err := h.svc.UpsertUser(r.Context(), identity, profile)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// Me returns the caller's user record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, me)
}

// ListUsers lists the other users, optionally filtered by ?search=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	search := r.URL.Query().Get("search")
	if len(search) > 100 {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "search too long (max 100 characters)")
		return
	}

	users, err := h.svc.ListUsers(r.Context(), me, search)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	h.JSON(w, http.StatusOK, UserListResponse{Users: users})
}

// GetUser returns another user's public profile.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentUser(w, r); !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// SetPresence marks the caller online or offline.
func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req PresenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IsOnline == nil {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "is_online is required")
		return
	}

	if err := h.svc.SetPresence(r.Context(), me, *req.IsOnline); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
