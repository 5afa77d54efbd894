package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// IsTypingLive reports whether a signal written at lastTyped is still live
// at now. Both are Unix milliseconds.
func IsTypingLive(lastTyped, now int64) bool {
	return now-lastTyped < models.TypingWindow.Milliseconds()
}

// SetTyping refreshes the caller's typing signal in the conversation.
func (s *Service) SetTyping(ctx context.Context, me *models.User, conversationID uuid.UUID) error {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return err
	}
	if err := s.typing.SetTyping(ctx, conv.ID, me.ID, s.nowMillis()); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	metrics.TypingSignals.Inc()
	s.publish(ctx, typingEvent(conv.ID, me.ID))
	return nil
}

// ClearTyping removes the caller's typing signal. Clearing an absent signal
// succeeds.
func (s *Service) ClearTyping(ctx context.Context, me *models.User, conversationID uuid.UUID) error {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return err
	}
	if err := s.typing.ClearTyping(ctx, conv.ID, me.ID); err != nil {
		return fmt.Errorf("clear typing: %w", err)
	}
	s.publish(ctx, typingEvent(conv.ID, me.ID))
	return nil
}

// ActiveTypers returns the users with a live typing signal in the
// conversation, excluding the caller, least recently typed first.
func (s *Service) ActiveTypers(ctx context.Context, me *models.User, conversationID uuid.UUID) ([]models.User, error) {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}

	signals, err := s.typing.ListTyping(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}

	now := s.nowMillis()
	var live []uuid.UUID
	for _, sig := range signals {
		if sig.UserID == me.ID || !IsTypingLive(sig.LastTyped, now) {
			continue
		}
		live = append(live, sig.UserID)
	}

	users, err := s.store.GetUsersByIDs(ctx, live)
	if err != nil {
		return nil, fmt.Errorf("resolve typers: %w", err)
	}

	out := []models.User{}
	for _, id := range live {
		if u, ok := users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func typingEvent(conversationID, userID uuid.UUID) models.Event {
	return models.Event{
		Type:           models.EventTypingChanged,
		Topics:         []string{models.ConversationTopic(conversationID)},
		ConversationID: &conversationID,
		UserID:         &userID,
	}
}
