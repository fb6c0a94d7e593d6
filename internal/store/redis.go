package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/metrics"
)

var (
	// ErrMessageNotFound is returned when a message id is not in a channel's history.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotParticipant is returned when an identity is not a party to a channel.
	ErrNotParticipant = errors.New("identity is not a participant of the channel")
	// ErrNotDirect is returned when a direct-chat operation targets a community channel.
	ErrNotDirect = errors.New("channel is not a direct channel")
)

// RedisStore keeps chat history, unread counters and cluster presence in Redis.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisStoreFromClient(client, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Client returns the underlying Redis client. The broker shares it.
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

// historyKey returns the key for a channel's message sorted set.
func historyKey(channel string) string {
	return fmt.Sprintf("chat:history:%s", channel)
}

// userChannelsKey returns the key for the set of channels an identity takes part in.
func userChannelsKey(identity string) string {
	return fmt.Sprintf("chat:user:%s:channels", identity)
}

// unreadKey returns the key for an identity's unread counter.
func unreadKey(identity string) string {
	return fmt.Sprintf("chat:unread:%s", identity)
}

// presenceKey returns the key for a channel's open-session hash.
func presenceKey(channel string) string {
	return fmt.Sprintf("chat:presence:%s", channel)
}

const historyPrefix = "chat:history:"

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}
