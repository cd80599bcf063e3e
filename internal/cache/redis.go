package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farazbot/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventsChannel is the pub/sub channel moderation events are published on
const EventsChannel = "moderation"

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client and checks the connection
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Pub/Sub

// PublishEvent publishes a moderation event to the events channel
func (r *RedisClient) PublishEvent(ctx context.Context, ev models.ModerationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, EventsChannel, data).Err()
}

// SubscribeToEvents subscribes to the events channel
func (r *RedisClient) SubscribeToEvents(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, EventsChannel)
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// tokenBucket keeps tokens and the last refill time (ms) in a hash per key
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(vals[1])
local last = tonumber(vals[2])
if tokens == nil then tokens = burst end
if last == nil then last = now end
local delta = math.max(0, now - last)
local new_tokens = math.min(burst, tokens + (delta * rate / 1000))
local allowed = 0
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	allowed = 1
end
redis.call('HSET', key, 'tokens', new_tokens, 'last', now)
redis.call('PEXPIRE', key, 60000)
return allowed
`)

// AllowAction implements a Redis-backed token-bucket limiter per key (subject+action).
// Returns true if the action is allowed, false if rate-limited.
func (r *RedisClient) AllowAction(ctx context.Context, subject, action string, rate float64, burst int) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", action, subject)
	now := time.Now().UnixMilli()
	res, err := tokenBucket.Run(ctx, r.client, []string{key}, rate, burst, now).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limiter script failed: %w", err)
	}
	return res == 1, nil
}
