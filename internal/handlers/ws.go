package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/tarschat/internal/chat"
	"github.com/eldtechnologies/tarschat/internal/models"
	"github.com/eldtechnologies/tarschat/internal/realtime"
)

// checkOrigin allows any origin when none are configured or "*" is listed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Websocket upgrades the connection and streams change events to the
// caller.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.Error(w, http.StatusServiceUnavailable, "unavailable", "realtime not enabled")
		return
	}
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := &wsSession{svc: h.svc, hub: h.hub, me: me, logger: h.logger}
	if err := h.svc.SetPresence(r.Context(), me, true); err != nil {
		h.logger.Warn().Err(err).Str("user_id", me.ID.String()).Msg("mark online on connect failed")
	}

	// Serve blocks until the connection closes; the request context is
	// cancelled by then, so callbacks use their own.
	realtime.NewClient(h.hub, conn, me.ID, session).Serve()
}

// wsSession performs socket-initiated actions as one user.
type wsSession struct {
	svc    *chat.Service
	hub    *realtime.Hub
	me     *models.User
	logger zerolog.Logger
}

func (s *wsSession) CanSubscribe(ctx context.Context, conversationID uuid.UUID) error {
	view, err := s.svc.GetConversation(ctx, s.me, conversationID)
	if err != nil {
		return err
	}
	if view == nil {
		return chat.ErrNotFound
	}
	return nil
}

func (s *wsSession) Typing(ctx context.Context, conversationID uuid.UUID, active bool) error {
	if active {
		return s.svc.SetTyping(ctx, s.me, conversationID)
	}
	return s.svc.ClearTyping(ctx, s.me, conversationID)
}

func (s *wsSession) Heartbeat(ctx context.Context) error {
	return s.svc.SetPresence(ctx, s.me, true)
}

// Disconnected marks the user offline unless a new connection arrived in
// the meantime.
func (s *wsSession) Disconnected(ctx context.Context) {
	if s.hub.Connected(s.me.ID) {
		return
	}
	if err := s.svc.SetPresence(ctx, s.me, false); err != nil {
		s.logger.Warn().Err(err).Str("user_id", s.me.ID.String()).Msg("mark offline on disconnect failed")
	}
}
