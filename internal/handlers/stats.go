package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers         int64  `json:"total_users"`
	OnlineUsers        int64  `json:"online_users"`
	TotalConversations int64  `json:"total_conversations"`
	TotalMessages      int64  `json:"total_messages"`
	TotalMessagesHuman string `json:"total_messages_human"`
	LastActivity       string `json:"last_activity"`
	LastActivityAt     *int64 `json:"last_activity_at,omitempty"`
}

// Stats returns deployment-wide counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load stats")
		h.Error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}

	lastActivity := "no activity yet"
	if st.LastActivity != nil {
		lastActivity = humanize.Time(time.UnixMilli(*st.LastActivity))
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:         st.Users,
		OnlineUsers:        st.OnlineUsers,
		TotalConversations: st.Conversations,
		TotalMessages:      st.Messages,
		TotalMessagesHuman: humanize.Comma(st.Messages),
		LastActivity:       lastActivity,
		LastActivityAt:     st.LastActivity,
	})
}
