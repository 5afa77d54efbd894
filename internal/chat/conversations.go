package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

const maxGroupNameLength = 100

// GetOrCreateDirectConversation returns the DM between me and other,
// creating it on first use. Argument order does not matter: (a, b) and
// (b, a) always resolve to the same conversation.
func (s *Service) GetOrCreateDirectConversation(ctx context.Context, me *models.User, otherID uuid.UUID) (*models.Conversation, error) {
	if otherID == me.ID {
		return nil, fmt.Errorf("%w: cannot open a conversation with yourself", ErrInvalidArgument)
	}
	other, err := s.store.GetUserByID(ctx, otherID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if other == nil || other.IsDeleted {
		return nil, ErrNotFound
	}

	conv, created, err := s.store.GetOrCreateDirectConversation(ctx, me.ID, otherID, s.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("direct conversation: %w", err)
	}

	if created {
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
		s.logger.Info().
			Str("conversation_id", conv.ID.String()).
			Str("user_id", me.ID.String()).
			Msg("direct conversation created")
		s.publish(ctx, conversationEvent(models.EventConversationCreated, conv, me.ID))
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator is always a
// participant and is listed first; duplicate members are collapsed.
func (s *Service) CreateGroup(ctx context.Context, me *models.User, name string, memberIDs []uuid.UUID) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	}
	if len([]rune(name)) > maxGroupNameLength {
		return nil, fmt.Errorf("%w: group name too long", ErrInvalidArgument)
	}

	participants := []uuid.UUID{me.ID}
	seen := map[uuid.UUID]bool{me.ID: true}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}

	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least one other member", ErrInvalidArgument)
	}

	found, err := s.store.GetUsersByIDs(ctx, participants[1:])
	if err != nil {
		return nil, fmt.Errorf("lookup members: %w", err)
	}
	for _, id := range participants[1:] {
		if u, ok := found[id]; !ok || u.IsDeleted {
			return nil, fmt.Errorf("%w: member %s", ErrNotFound, id)
		}
	}

	conv, err := s.store.CreateGroupConversation(ctx, name, participants, s.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	s.logger.Info().
		Str("conversation_id", conv.ID.String()).
		Int("participants", len(participants)).
		Msg("group created")
	s.publish(ctx, conversationEvent(models.EventConversationCreated, conv, me.ID))
	return conv, nil
}

// GetConversation returns the conversation with its participants resolved.
// It returns nil, without error, when the caller is unknown, the
// conversation does not exist, or the caller does not participate in it.
func (s *Service) GetConversation(ctx context.Context, me *models.User, conversationID uuid.UUID) (*models.ConversationView, error) {
	if me == nil {
		return nil, nil
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(me.ID) {
		return nil, nil
	}

	users, err := s.store.GetUsersByIDs(ctx, conv.Participants)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	view := buildView(*conv, users, me)
	return &view, nil
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, me *models.User) ([]models.ConversationView, error) {
	convs, err := s.store.ListConversationsForUser(ctx, me.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var all []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, c := range convs {
		for _, p := range c.Participants {
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}

	views := make([]models.ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, buildView(c, users, me))
	}
	return views, nil
}

// buildView resolves participants in order, skipping unknown ids.
func buildView(conv models.Conversation, users map[uuid.UUID]*models.User, me *models.User) models.ConversationView {
	view := models.ConversationView{Conversation: conv, Members: []models.User{}, Me: me}
	for _, id := range conv.Participants {
		if u, ok := users[id]; ok {
			view.Members = append(view.Members, *u)
		}
	}
	return view
}
