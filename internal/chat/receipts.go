package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// MarkRead advances the caller's read watermark in the conversation to now.
// The watermark never moves backwards.
func (s *Service) MarkRead(ctx context.Context, me *models.User, conversationID uuid.UUID) (*models.ReadReceipt, error) {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}
	rr, err := s.store.MarkRead(ctx, conv.ID, me.ID, s.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	s.publish(ctx, models.Event{
		Type:           models.EventReadUpdated,
		Topics:         []string{models.ConversationTopic(conv.ID)},
		ConversationID: &conv.ID,
		UserID:         &me.ID,
	})
	return rr, nil
}

// ListReadReceipts returns every participant's read watermark.
func (s *Service) ListReadReceipts(ctx context.Context, me *models.User, conversationID uuid.UUID) ([]models.ReadReceipt, error) {
	conv, err := s.loadParticipating(ctx, me, conversationID)
	if err != nil {
		return nil, err
	}
	receipts, err := s.store.ListReadReceipts(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}
