// Package realtime pushes change events to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/tarschat/internal/metrics"
	"github.com/eldtechnologies/tarschat/internal/models"
)

// ErrHubBusy is returned by Publish when the delivery queue is full.
var ErrHubBusy = errors.New("realtime: hub queue full")

const eventQueueSize = 1024

// Hub tracks connected clients and the topics they follow.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	perUser map[uuid.UUID]int

	events chan models.Event
	logger zerolog.Logger
}

// NewHub creates a hub. Call Run to start delivering published events.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		perUser: make(map[uuid.UUID]int),
		events:  make(chan models.Event, eventQueueSize),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// Run delivers queued events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("websocket hub stopping")
			return
		case ev := <-h.events:
			h.Deliver(ev)
		}
	}
}

// Publish queues ev for delivery without blocking the caller.
func (h *Hub) Publish(ctx context.Context, ev models.Event) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrHubBusy
	}
}

// Deliver sends ev to every client subscribed to at least one of its topics.
// Each client receives the event once. Clients whose buffer is full are
// disconnected.
func (h *Hub) Deliver(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, topic := range ev.Topics {
		for c := range h.topics[topic] {
			targets[c] = struct{}{}
		}
	}
	var slow []*Client
	for c := range targets {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("user_id", c.userID.String()).Msg("client too slow, disconnecting")
		h.Unregister(c)
	}
}

// Register adds c and subscribes it to its user topic and presence.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.perUser[c.userID]++
	h.subscribeLocked(c, models.UserTopic(c.userID))
	h.subscribeLocked(c, models.PresenceTopic)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	h.logger.Debug().Str("user_id", c.userID.String()).Int("clients", total).Msg("client connected")
}

// Unregister removes c. When it was the user's last connection the
// session is told the user went away. Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for topic := range c.topics {
		h.unsubscribeLocked(c, topic)
	}
	close(c.send)

	last := false
	h.perUser[c.userID]--
	if h.perUser[c.userID] <= 0 {
		delete(h.perUser, c.userID)
		last = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketConnections.Dec()
	h.logger.Debug().Str("user_id", c.userID.String()).Int("clients", total).Msg("client disconnected")

	if last && c.session != nil {
		go c.session.Disconnected(context.Background())
	}
}

// Subscribe adds topic to c's subscriptions.
func (h *Hub) Subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.subscribeLocked(c, topic)
}

// Unsubscribe removes topic from c's subscriptions.
func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, topic)
}

// Connected reports whether userID has at least one open connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.perUser[userID] > 0
}

func (h *Hub) subscribeLocked(c *Client, topic string) {
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.topics, topic)
}
