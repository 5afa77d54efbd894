package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

const (
	maxContentBytes = 4096
	maxEmojiBytes   = 32
)

// Send appends a message to the conversation and returns it. The
// conversation's last-message fields are patched in the same transaction.
func (s *Service) Send(ctx context.Context, me *models.User, conversationID uuid.UUID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}
	if len(content) > maxContentBytes {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidArgument, maxContentBytes)
	}

	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       me.ID,
		Content:        content,
		CreatedAt:      s.nowMillis(),
		Reactions:      []models.Reaction{},
	}
	if err := s.store.InsertMessage(ctx, msg, Preview(content)); err != nil {
		return nil, fmt.Errorf("send: %w", storeErr(err))
	}
	metrics.MessagesSent.Inc()

	if err := s.typing.ClearTyping(ctx, conv.ID, me.ID); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("clear typing after send failed")
	}

	ev := conversationEvent(models.EventMessageCreated, conv, me.ID)
	ev.MessageID = msg.ID
	s.publish(ctx, ev)
	return msg, nil
}

// Preview truncates content to models.PreviewLength characters.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= models.PreviewLength {
		return content
	}
	return string(runes[:models.PreviewLength])
}

// List returns the conversation's full history in ascending creation order,
// each message with its sender resolved when possible.
func (s *Service) List(ctx context.Context, me *models.User, conversationID uuid.UUID) ([]models.EnrichedMessage, error) {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var senderIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	senders, err := s.store.GetUsersByIDs(ctx, senderIDs)
	if err != nil {
		// Senders are best-effort; the history itself is still returned.
		s.logger.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("resolve senders failed")
		senders = nil
	}

	out := make([]models.EnrichedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = models.EnrichedMessage{Message: m, Sender: senders[m.SenderID]}
	}
	return out, nil
}

// SoftDelete hides a message's content. Only its sender may delete it;
// deleting an already deleted message succeeds.
func (s *Service) SoftDelete(ctx context.Context, me *models.User, messageID string) error {
	msg, conv, err := s.loadMessage(ctx, me, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != me.ID {
		return ErrNotOwner
	}
	if msg.IsDeleted {
		return nil
	}

	if err := s.store.SoftDeleteMessage(ctx, msg.ID); err != nil {
		return fmt.Errorf("delete message: %w", storeErr(err))
	}

	ev := conversationEvent(models.EventMessageDeleted, conv, me.ID)
	ev.MessageID = msg.ID
	s.publish(ctx, ev)
	return nil
}

// ToggleReaction flips the caller's reaction with emoji on a message and
// reports whether the reaction is now present.
func (s *Service) ToggleReaction(ctx context.Context, me *models.User, messageID, emoji string) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, fmt.Errorf("%w: emoji is required", ErrInvalidArgument)
	}
	if len(emoji) > maxEmojiBytes {
		return false, fmt.Errorf("%w: emoji too long", ErrInvalidArgument)
	}

	msg, conv, err := s.loadMessage(ctx, me, messageID)
	if err != nil {
		return false, err
	}

	added, err := s.store.ToggleReaction(ctx, msg.ID, me.ID, emoji)
	if err != nil {
		return false, fmt.Errorf("toggle reaction: %w", storeErr(err))
	}

	result := "removed"
	if added {
		result = "added"
	}
	metrics.ReactionsToggled.WithLabelValues(result).Inc()

	ev := conversationEvent(models.EventReactionToggled, conv, me.ID)
	ev.MessageID = msg.ID
	s.publish(ctx, ev)
	return added, nil
}

// GetMessage returns a message the caller can see.
func (s *Service) GetMessage(ctx context.Context, me *models.User, messageID string) (*models.Message, error) {
	msg, _, err := s.loadMessage(ctx, me, messageID)
	return msg, err
}

// loadMessage returns the message and its conversation, or ErrNotFound when
// either is missing or the caller does not participate.
func (s *Service) loadMessage(ctx context.Context, me *models.User, messageID string) (*models.Message, *models.Conversation, error) {
	if messageID == "" {
		return nil, nil, ErrNotFound
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, nil, ErrNotFound
	}
	conv, err := s.loadParticipating(ctx, me, msg.ConversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get conversation: %w", err)
	}
	return msg, conv, nil
}
