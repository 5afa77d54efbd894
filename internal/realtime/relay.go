package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// DefaultRelayChannel is the Redis channel events are relayed on.
const DefaultRelayChannel = "tarschat:events"

// RedisRelay shares events between server instances over Redis pub/sub.
// Publish sends to Redis; Run feeds every event received back into the
// local hub, including this instance's own.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

// NewRedisRelay creates a relay on channel; an empty channel uses
// DefaultRelayChannel.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "relay").Logger(),
	}
}

// Publish sends ev to every instance.
func (r *RedisRelay) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run subscribes to the relay channel and delivers events locally until
// ctx is cancelled. It fails only when the subscription cannot be
// established.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			r.hub.Deliver(ev)
		}
	}
}
