package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IncrementUnread records one message that missed live delivery to identity.
func (s *RedisStore) IncrementUnread(ctx context.Context, identity string) (int64, error) {
	defer observe(time.Now())

	n, err := s.client.Incr(ctx, unreadKey(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment unread for %s: %w", identity, err)
	}
	return n, nil
}

// ReadAndResetUnread returns the unread count for identity and resets it to zero.
func (s *RedisStore) ReadAndResetUnread(ctx context.Context, identity string) (int64, error) {
	defer observe(time.Now())

	key := unreadKey(identity)
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("reset unread for %s: %w", identity, err)
	}

	n, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// UnreadCount returns the unread count for identity without resetting it.
func (s *RedisStore) UnreadCount(ctx context.Context, identity string) (int64, error) {
	defer observe(time.Now())

	n, err := s.client.Get(ctx, unreadKey(identity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unread for %s: %w", identity, err)
	}
	return n, nil
}
