package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/eldtechnologies/tarschat/internal/api/middleware"
	"github.com/eldtechnologies/tarschat/internal/chat"
	"github.com/eldtechnologies/tarschat/internal/models"
	"github.com/eldtechnologies/tarschat/internal/realtime"
	"github.com/eldtechnologies/tarschat/internal/store"
)

// Config carries the dependencies of the HTTP handlers. Redis, Hub and
// Webhook are optional.
type Config struct {
	Service        *chat.Service
	Store          store.DataStore
	StoreName      string // reported by /health, e.g. "postgres"
	Redis          *store.RedisStore
	Hub            *realtime.Hub
	Webhook        *svix.Webhook
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc       *chat.Service
	store     store.DataStore
	storeName string
	redis     *store.RedisStore
	hub       *realtime.Hub
	webhook   *svix.Webhook
	origins   []string
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(cfg Config) *Handler {
	name := cfg.StoreName
	if name == "" {
		name = "database"
	}
	return &Handler{
		svc:       cfg.Service,
		store:     cfg.Store,
		storeName: name,
		redis:     cfg.Redis,
		hub:       cfg.Hub,
		webhook:   cfg.Webhook,
		origins:   cfg.AllowedOrigins,
		logger:    cfg.Logger,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, code, message string) {
	h.JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// Fail maps a service error onto its HTTP status. Unexpected errors are
// logged and reported without detail.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		h.Error(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, chat.ErrUserNotFound):
		h.Error(w, http.StatusForbidden, "user_not_found", "user not registered")
	case errors.Is(err, chat.ErrNotOwner):
		h.Error(w, http.StatusForbidden, "not_owner", "only the sender can do this")
	case errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, chat.ErrInvalidArgument):
		h.Error(w, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// currentUser resolves the caller. On failure the response has been written
// and ok is false.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	me, err := h.svc.ResolveCurrentUser(r.Context(), middleware.GetIdentityFromContext(r.Context()))
	if err != nil {
		h.Fail(w, r, err)
		return nil, false
	}
	return me, true
}

// pathUUID parses the named URL parameter as a UUID.
func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return false
	}
	return true
}
