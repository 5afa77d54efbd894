package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// typingTTL bounds how long an idle conversation's typing hash survives.
const typingTTL = 10 * time.Second

// RedisStore holds typing signals in Redis and exposes the client for
// event fan-out.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// typingKey returns the key for a conversation's typing hash.
func typingKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("typing:%s", conversationID)
}

// setTypingScript drops fields at or below the cutoff and writes the
// caller's signal in one step, so a signal refreshed concurrently by another
// user is never swept.
//
// KEYS[1] typing hash; ARGV cutoff, user id, now, ttl in ms.
var setTypingScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local fields = redis.call('HGETALL', KEYS[1])
for i = 1, #fields, 2 do
	local ts = tonumber(fields[i + 1])
	if ts == nil or ts <= cutoff then
		redis.call('HDEL', KEYS[1], fields[i])
	end
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// SetTyping records userID's typing signal and drops expired fields of the
// same hash.
func (s *RedisStore) SetTyping(ctx context.Context, conversationID, userID uuid.UUID, now int64) error {
	cutoff := now - models.TypingWindow.Milliseconds()
	return setTypingScript.Run(ctx, s.client,
		[]string{typingKey(conversationID)},
		cutoff, userID.String(), now, typingTTL.Milliseconds(),
	).Err()
}

// ClearTyping removes userID's typing signal if present.
func (s *RedisStore) ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	return s.client.HDel(ctx, typingKey(conversationID), userID.String()).Err()
}

// ListTyping returns every stored typing signal of a conversation, oldest
// first.
func (s *RedisStore) ListTyping(ctx context.Context, conversationID uuid.UUID) ([]models.TypingIndicator, error) {
	current, err := s.client.HGetAll(ctx, typingKey(conversationID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.TypingIndicator, 0, len(current))
	for field, value := range current {
		userID, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, models.TypingIndicator{
			ConversationID: conversationID,
			UserID:         userID,
			LastTyped:      ts,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastTyped != out[j].LastTyped {
			return out[i].LastTyped < out[j].LastTyped
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}
