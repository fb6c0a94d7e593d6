package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/topic"
)

// storedMessage is the sorted-set member for a direct message. The
// timestamp lives in the score. ID comes first so that members sharing a
// score sort by ULID.
type storedMessage struct {
	ID              string `json:"id"`
	Sender          string `json:"sender"`
	Receiver        string `json:"receiver"`
	Content         string `json:"content"`
	SenderName      string `json:"senderName"`
	ReceiverName    string `json:"receiverName"`
	DeletedSender   bool   `json:"deletedSender"`
	DeletedReceiver bool   `json:"deletedReceiver"`
}

func toStored(msg *models.Message) storedMessage {
	return storedMessage{
		ID:              msg.ID,
		Sender:          msg.Sender,
		Receiver:        msg.Receiver,
		Content:         msg.Content,
		SenderName:      msg.SenderName,
		ReceiverName:    msg.ReceiverName,
		DeletedSender:   msg.DeletedSender,
		DeletedReceiver: msg.DeletedReceiver,
	}
}

func (m storedMessage) toMessage(score float64) models.Message {
	return models.Message{
		ID:              m.ID,
		Sender:          m.Sender,
		Receiver:        m.Receiver,
		Content:         m.Content,
		TimeStamp:       time.Unix(int64(score), 0).UTC(),
		SenderName:      m.SenderName,
		ReceiverName:    m.ReceiverName,
		DeletedSender:   m.DeletedSender,
		DeletedReceiver: m.DeletedReceiver,
	}
}

// AppendMessage stores a direct message in the channel's history and
// indexes the channel under both participants.
func (s *RedisStore) AppendMessage(ctx context.Context, channel string, msg *models.Message) error {
	defer observe(time.Now())

	a, b, ok := topic.Participants(channel)
	if !ok {
		return fmt.Errorf("append to %s: %w", channel, ErrNotDirect)
	}

	// Generate ULID if not set
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.TimeStamp.IsZero() {
		msg.TimeStamp = time.Now()
	}

	data, err := json.Marshal(toStored(msg))
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, historyKey(channel), redis.Z{
			Score:  float64(msg.TimeStamp.Unix()),
			Member: string(data),
		})
		pipe.SAdd(ctx, userChannelsKey(a), channel)
		pipe.SAdd(ctx, userChannelsKey(b), channel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to %s: %w", channel, err)
	}
	return nil
}

// History returns every retained message of a channel, oldest first.
// Entries that fail to decode are logged and skipped.
func (s *RedisStore) History(ctx context.Context, channel string) ([]models.Message, error) {
	defer observe(time.Now())

	results, err := s.client.ZRangeWithScores(ctx, historyKey(channel), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", channel, err)
	}

	messages := make([]models.Message, 0, len(results))
	for _, z := range results {
		stored, err := decodeMember(z.Member)
		if err != nil {
			s.logger.Warn().Err(err).Str("channel", channel).Msg("skipping undecodable history entry")
			continue
		}
		messages = append(messages, stored.toMessage(z.Score))
	}

	return messages, nil
}

func decodeMember(member interface{}) (storedMessage, error) {
	var stored storedMessage
	raw, ok := member.(string)
	if !ok {
		return stored, fmt.Errorf("unexpected member type %T", member)
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return stored, err
	}
	return stored, nil
}

// ListChannels returns the direct channels identity takes part in, sorted.
// It reads the per-identity index and falls back to a key scan when the
// index is empty.
func (s *RedisStore) ListChannels(ctx context.Context, identity string) ([]string, error) {
	defer observe(time.Now())

	members, err := s.client.SMembers(ctx, userChannelsKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("channels of %s: %w", identity, err)
	}
	if len(members) == 0 {
		return s.ScanChannels(ctx, identity)
	}

	channels := make([]string, 0, len(members))
	for _, ch := range members {
		if topic.Includes(ch, identity) {
			channels = append(channels, ch)
		}
	}
	sort.Strings(channels)
	return channels, nil
}

// ScanChannels discovers the channels containing identity by scanning every
// history key. It costs O(total channels).
func (s *RedisStore) ScanChannels(ctx context.Context, identity string) ([]string, error) {
	channels := []string{}
	iter := s.client.Scan(ctx, 0, historyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ch := strings.TrimPrefix(iter.Val(), historyPrefix)
		if topic.Includes(ch, identity) {
			channels = append(channels, ch)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan channels of %s: %w", identity, err)
	}
	sort.Strings(channels)
	return channels, nil
}

// DeleteChannel removes a channel's entire history.
func (s *RedisStore) DeleteChannel(ctx context.Context, channel string) error {
	defer observe(time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, historyKey(channel))
		if a, b, ok := topic.Participants(channel); ok {
			pipe.SRem(ctx, userChannelsKey(a), channel)
			pipe.SRem(ctx, userChannelsKey(b), channel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", channel, err)
	}
	return nil
}

// SoftDelete hides a message from one side of the conversation by setting
// deletedSender or deletedReceiver, depending on which party identity is.
func (s *RedisStore) SoftDelete(ctx context.Context, channel, messageID, identity string) (*models.Message, error) {
	defer observe(time.Now())

	if !topic.Includes(channel, identity) {
		return nil, ErrNotParticipant
	}

	key := historyKey(channel)
	var updated models.Message

	txf := func(tx *redis.Tx) error {
		results, err := tx.ZRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		for _, z := range results {
			stored, err := decodeMember(z.Member)
			if err != nil || stored.ID != messageID {
				continue
			}

			switch identity {
			case stored.Sender:
				stored.DeletedSender = true
			case stored.Receiver:
				stored.DeletedReceiver = true
			default:
				return ErrNotParticipant
			}

			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			updated = stored.toMessage(z.Score)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, key, z.Member)
				pipe.ZAdd(ctx, key, redis.Z{Score: z.Score, Member: string(data)})
				return nil
			})
			return err
		}
		return ErrMessageNotFound
	}

	// Retry if the history changed underneath us
	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("soft delete %s in %s: %w", messageID, channel, redis.TxFailedErr)
}
