// Package chat implements the chat core: the identity directory, the
// conversation registry, the message store, typing liveness, read receipts
// and presence. Every operation resolves the caller first and runs as a
// single store transaction; successful writes are announced as events.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
	"github.com/eldtechnologies/tarschat/internal/store"
)

// Publisher delivers change events to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Event) error { return nil }

// Service is the chat core.
type Service struct {
	store  store.DataStore
	typing store.TypingStore
	events Publisher
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTypingStore keeps typing signals somewhere other than the data store.
func WithTypingStore(ts store.TypingStore) Option {
	return func(s *Service) { s.typing = ts }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat service backed by ds.
func NewService(ds store.DataStore, opts ...Option) *Service {
	s := &Service{
		store:  ds,
		typing: ds,
		events: nopPublisher{},
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// publish sends ev, logging failures. Events are advisory: subscribers
// re-read state, so a lost event only delays a refresh.
func (s *Service) publish(ctx context.Context, ev models.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = s.nowMillis()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", ev.Type).Msg("event publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
}

func conversationEvent(typ string, conv *models.Conversation, userID uuid.UUID) models.Event {
	convID := conv.ID
	ev := models.Event{
		Type:           typ,
		ConversationID: &convID,
		UserID:         &userID,
		Topics:         []string{models.ConversationTopic(conv.ID)},
	}
	for _, p := range conv.Participants {
		ev.Topics = append(ev.Topics, models.UserTopic(p))
	}
	return ev
}

// loadParticipating returns the conversation if me participates in it, and
// ErrNotFound otherwise.
func (s *Service) loadParticipating(ctx context.Context, me *models.User, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.HasParticipant(me.ID) {
		return nil, ErrNotFound
	}
	return conv, nil
}
