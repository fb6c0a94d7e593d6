package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// leaveScript decrements an identity's session count on a channel and drops
// the field once it reaches zero.
var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

// Join records one more open session of identity on channel, cluster-wide.
func (s *RedisStore) Join(ctx context.Context, channel, identity string) error {
	defer observe(time.Now())

	if err := s.client.HIncrBy(ctx, presenceKey(channel), identity, 1).Err(); err != nil {
		return fmt.Errorf("join %s: %w", channel, err)
	}
	return nil
}

// Leave records that one session of identity left channel.
func (s *RedisStore) Leave(ctx context.Context, channel, identity string) error {
	defer observe(time.Now())

	if err := leaveScript.Run(ctx, s.client, []string{presenceKey(channel)}, identity).Err(); err != nil {
		return fmt.Errorf("leave %s: %w", channel, err)
	}
	return nil
}

// PresenceOf returns how many sessions of identity are open on channel
// across all instances.
func (s *RedisStore) PresenceOf(ctx context.Context, channel, identity string) (int64, error) {
	defer observe(time.Now())

	n, err := s.client.HGet(ctx, presenceKey(channel), identity).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("presence of %s on %s: %w", identity, channel, err)
	}
	return n, nil
}

// ChannelPresence returns the number of sessions open on channel across
// all instances.
func (s *RedisStore) ChannelPresence(ctx context.Context, channel string) (int64, error) {
	defer observe(time.Now())

	vals, err := s.client.HVals(ctx, presenceKey(channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence on %s: %w", channel, err)
	}

	var total int64
	for _, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		if n > 0 {
			total += n
		}
	}
	return total, nil
}
