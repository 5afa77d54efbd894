package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// IdentityWebhookPayload is a user lifecycle event from the identity
// provider.
type IdentityWebhookPayload struct {
	Type string              `json:"type"`
	Data IdentityWebhookUser `json:"data"`
}

// IdentityWebhookUser is the user object carried by an identity event.
type IdentityWebhookUser struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	Username              string         `json:"username"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
}

// EmailAddress is one address on the identity provider's user.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// IdentityWebhook verifies and applies identity provider events.
func (h *Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook == nil {
		h.Error(w, http.StatusServiceUnavailable, "unavailable", "webhooks not configured")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "failed to read request body")
		return
	}
	if err := h.webhook.Verify(payload, r.Header); err != nil {
		h.logger.Warn().
			Str("type", "security").
			Str("event", "webhook_signature_invalid").
			Err(err).
			Msg("rejected identity webhook")
		h.Error(w, http.StatusUnauthorized, "unauthenticated", "invalid webhook signature")
		return
	}

	var body IdentityWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return
	}

	ev := body.toEvent()
	if err := h.svc.ApplyIdentityEvent(r.Context(), ev); err != nil {
		h.Fail(w, r, err)
		return
	}
	metrics.IdentityEvents.WithLabelValues(ev.Type).Inc()

	h.logger.Info().
		Str("type", ev.Type).
		Str("external_id", ev.ExternalID).
		Msg("identity event applied")
	w.WriteHeader(http.StatusNoContent)
}

func (p IdentityWebhookPayload) toEvent() models.IdentityEvent {
	d := p.Data
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if name == "" {
		name = d.Username
	}

	ev := models.IdentityEvent{
		Type:       p.Type,
		ExternalID: d.ID,
		Profile:    models.Profile{Name: name, Email: d.primaryEmail()},
	}
	if d.ImageURL != "" {
		image := d.ImageURL
		ev.Profile.ImageURL = &image
	}
	return ev
}

func (u IdentityWebhookUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}
